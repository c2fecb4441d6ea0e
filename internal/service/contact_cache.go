package service

import (
	"context"
	"time"

	"supportbridge/internal/constants"
	"supportbridge/pkg/transport/types"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ContactCache resolves display names and avatars for transport contacts,
// caching results so repeated message events do not hammer the API.
type ContactCache interface {
	GetDisplayName(ctx context.Context, contactID, fallback string) string
	GetAvatarURL(ctx context.Context, contactID string) string
	Update(contactID, name, avatarURL string)
	Invalidate(contactID string)
}

type cachedContact struct {
	name      string
	avatarURL string
}

type contactCache struct {
	transport types.Client
	cache     *gocache.Cache
	logger    *logrus.Logger
}

// NewContactCache creates a contact cache with the given TTL in hours.
func NewContactCache(transport types.Client, ttlHours int, logger *logrus.Logger) ContactCache {
	if ttlHours <= 0 {
		ttlHours = constants.DefaultContactCacheHours
	}
	ttl := time.Duration(ttlHours) * time.Hour
	return &contactCache{
		transport: transport,
		cache:     gocache.New(ttl, ttl/2),
		logger:    logger,
	}
}

// GetDisplayName returns the best known name for a contact, falling back
// to the provided value (typically the push name or phone number) when
// nothing better is known.
func (c *contactCache) GetDisplayName(ctx context.Context, contactID, fallback string) string {
	if entry, found := c.cache.Get(contactID); found {
		cached := entry.(cachedContact)
		if cached.name != "" {
			return cached.name
		}
		return fallback
	}

	// Cache miss. A full address book fetch is too heavy per message, so
	// record the fallback and let contact.updated events refresh it.
	c.cache.SetDefault(contactID, cachedContact{name: fallback})
	return fallback
}

// GetAvatarURL returns the contact's profile picture URL, fetching it on
// first use.
func (c *contactCache) GetAvatarURL(ctx context.Context, contactID string) string {
	if entry, found := c.cache.Get(contactID); found {
		cached := entry.(cachedContact)
		if cached.avatarURL != "" {
			return cached.avatarURL
		}
	}

	picture, err := c.transport.GetProfilePicture(ctx, contactID)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"contactId": contactID,
			"error":     err,
		}).Debug("Failed to fetch profile picture")
		return ""
	}
	if picture == nil || picture.URL == "" {
		return ""
	}

	cached := cachedContact{avatarURL: picture.URL}
	if entry, found := c.cache.Get(contactID); found {
		cached.name = entry.(cachedContact).name
	}
	c.cache.SetDefault(contactID, cached)
	return picture.URL
}

// Update records fresh contact data, typically from a contact.updated event.
func (c *contactCache) Update(contactID, name, avatarURL string) {
	cached := cachedContact{name: name, avatarURL: avatarURL}
	if entry, found := c.cache.Get(contactID); found {
		prev := entry.(cachedContact)
		if cached.name == "" {
			cached.name = prev.name
		}
		if cached.avatarURL == "" {
			cached.avatarURL = prev.avatarURL
		}
	}
	c.cache.SetDefault(contactID, cached)
}

// Invalidate drops a contact from the cache.
func (c *contactCache) Invalidate(contactID string) {
	c.cache.Delete(contactID)
}
