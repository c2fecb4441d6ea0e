package models

import "time"

// JobType selects what a sync job imports.
type JobType string

const (
	JobTypeContacts JobType = "contacts"
	JobTypeMessages JobType = "messages"
	JobTypeAll      JobType = "all"
)

func (t JobType) Valid() bool {
	return t == JobTypeContacts || t == JobTypeMessages || t == JobTypeAll
}

// JobStatus is the sync job state machine. A job transitions from running
// to exactly one terminal state and is never resumed.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ContactStats breaks down contact import outcomes per category.
type ContactStats struct {
	Saved            int `json:"saved"`
	AlreadyExists    int `json:"alreadyExists"`
	Groups           int `json:"groups"`
	Broadcasts       int `json:"broadcasts"`
	Newsletters      int `json:"newsletters"`
	NotInAddressBook int `json:"notInAddressBook"`
	Lid              int `json:"lid"`
	InvalidPhone     int `json:"invalidPhone"`
	Errors           int `json:"errors"`
}

// Total returns the number of contacts examined.
func (s ContactStats) Total() int {
	return s.Saved + s.AlreadyExists + s.Groups + s.Broadcasts + s.Newsletters +
		s.NotInAddressBook + s.Lid + s.InvalidPhone + s.Errors
}

// MessageStats breaks down message import outcomes per category. Text,
// Media and Reaction count mirrored messages; the rest count skips.
// Private and Group additionally classify mirrored messages by chat kind.
type MessageStats struct {
	Text          int `json:"text"`
	Media         int `json:"media"`
	Reaction      int `json:"reaction"`
	AlreadySynced int `json:"alreadySynced"`
	TooOld        int `json:"tooOld"`
	Broadcast     int `json:"broadcast"`
	Newsletter    int `json:"newsletter"`
	Protocol      int `json:"protocol"`
	System        int `json:"system"`
	EmptyContent  int `json:"emptyContent"`
	MissingMedia  int `json:"missingMedia"`
	LidChat       int `json:"lidChat"`
	Ignored       int `json:"ignored"`
	Private       int `json:"private"`
	Group         int `json:"group"`
	Errors        int `json:"errors"`
}

// Imported returns the number of messages mirrored to the platform.
func (s MessageStats) Imported() int {
	return s.Text + s.Media + s.Reaction
}

// Skipped returns the number of messages examined but not mirrored.
func (s MessageStats) Skipped() int {
	return s.AlreadySynced + s.TooOld + s.Broadcast + s.Newsletter + s.Protocol +
		s.System + s.EmptyContent + s.MissingMedia + s.LidChat + s.Ignored
}

// SyncJob is the persisted state of one bulk import run. Exactly one
// non-terminal job may exist per session at a time.
type SyncJob struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionId"`
	Type       JobType      `json:"type"`
	Status     JobStatus    `json:"status"`
	WindowDays int          `json:"windowDays"`
	StartedAt  time.Time    `json:"startedAt"`
	EndedAt    *time.Time   `json:"endedAt,omitempty"`
	Contacts   ContactStats `json:"contacts"`
	Messages   MessageStats `json:"messages"`
	Error      string       `json:"error,omitempty"`
}
