package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"supportbridge/internal/constants"
	"supportbridge/internal/database"
	apperrors "supportbridge/internal/errors"
	"supportbridge/internal/middleware"
	"supportbridge/internal/models"
	"supportbridge/internal/service"
	"supportbridge/pkg/chatwoot"
	"supportbridge/pkg/transport/types"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router *mux.Router
	logger *logrus.Logger
	server *http.Server

	cfg        *models.Config
	db         *database.Database
	ingest     service.IngestService
	importSvc  service.ImportService
	resolver   service.Resolver
	registry   *service.PlatformRegistry
	transport  types.Client
	adminToken string
}

func NewServer(cfg *models.Config, db *database.Database, ingest service.IngestService, importSvc service.ImportService, resolver service.Resolver, registry *service.PlatformRegistry, transport types.Client, adminToken string, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		cfg:        cfg,
		db:         db,
		ingest:     ingest,
		importSvc:  importSvc,
		resolver:   resolver,
		registry:   registry,
		transport:  transport,
		adminToken: adminToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/webhook", s.handleIngest()).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.adminAuth)

	api.HandleFunc("/sessions/{sessionId}/integration", s.handleGetIntegration()).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}/integration", s.handlePutIntegration()).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{sessionId}/integration", s.handleDeleteIntegration()).Methods(http.MethodDelete)

	api.HandleFunc("/sessions/{sessionId}/webhooks", s.handleListWebhooks()).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}/webhooks", s.handleCreateWebhook()).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/{id}", s.handleUpdateWebhook()).Methods(http.MethodPut)
	api.HandleFunc("/webhooks/{id}", s.handleDeleteWebhook()).Methods(http.MethodDelete)
	api.HandleFunc("/webhooks/{id}/deliveries", s.handleListDeliveries()).Methods(http.MethodGet)

	api.HandleFunc("/sessions/{sessionId}/sync", s.handleStartSync()).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/sync", s.handleSyncStatus()).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}/sync", s.handleCancelSync()).Methods(http.MethodDelete)

	api.HandleFunc("/sessions/{sessionId}/conversations/{id}/labels", s.handleAssignLabels()).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/platform/orphan-contacts", s.handleDeleteOrphanContacts()).Methods(http.MethodDelete)

	api.HandleFunc("/sessions/{sessionId}/resolve", s.handleResolve()).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/conversations/resolve", s.handleResolveAll()).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/mappings", s.handleListMappings()).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}/reset", s.handleReset()).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/messages", s.handleSendMessage()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !checkAdminToken(r, s.adminToken) {
			s.writeError(w, apperrors.New(apperrors.ErrCodeAuthentication, "invalid admin token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleIngest receives one transport event and fans it out. A non-2xx
// response makes the transport redeliver, which is safe because message
// sync dedups per source message id.
func (s *Server) handleIngest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := verifySignature(r, s.cfg.Transport.WebhookSecret)
		if err != nil {
			s.logger.WithField("error", err).Warn("Rejected ingest webhook")
			s.writeError(w, apperrors.New(apperrors.ErrCodeAuthentication, "signature verification failed"))
			return
		}

		var ev models.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed event payload"))
			return
		}

		if err := s.ingest.HandleEvent(r.Context(), &ev); err != nil {
			s.logger.WithFields(logrus.Fields{
				"eventId": ev.ID,
				"kind":    ev.Kind,
				"error":   err,
			}).Error("Failed to process event")
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "eventId": ev.ID})
	}
}

func (s *Server) handleGetIntegration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]
		cfg, err := s.db.GetIntegrationConfig(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if cfg == nil {
			s.writeError(w, apperrors.NewNotFoundError("integration config", sessionID))
			return
		}
		s.writeJSON(w, http.StatusOK, cfg)
	}
}

func (s *Server) handlePutIntegration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		var cfg models.IntegrationConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed integration config"))
			return
		}
		cfg.SessionID = sessionID
		if err := cfg.Validate(); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "invalid integration config"))
			return
		}

		if err := s.db.SaveIntegrationConfig(r.Context(), &cfg); err != nil {
			s.writeError(w, err)
			return
		}
		s.registry.Drop(sessionID)
		s.writeJSON(w, http.StatusOK, &cfg)
	}
}

func (s *Server) handleDeleteIntegration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]
		if err := s.db.DeleteIntegrationConfig(r.Context(), sessionID); err != nil {
			s.writeError(w, err)
			return
		}
		s.registry.Drop(sessionID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListWebhooks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]
		subs, err := s.db.ListWebhookSubscriptions(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, subs)
	}
}

func (s *Server) handleCreateWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		var sub models.WebhookSubscription
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed webhook subscription"))
			return
		}
		sub.SessionID = sessionID
		if sub.ID == "" {
			sub.ID = uuid.New().String()
		}
		if err := sub.Validate(); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid webhook subscription"))
			return
		}

		if err := s.db.SaveWebhookSubscription(r.Context(), &sub); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, &sub)
	}
}

func (s *Server) handleUpdateWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		existing, err := s.db.GetWebhookSubscription(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if existing == nil {
			s.writeError(w, apperrors.NewNotFoundError("webhook subscription", id))
			return
		}

		var sub models.WebhookSubscription
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed webhook subscription"))
			return
		}
		sub.ID = id
		sub.SessionID = existing.SessionID
		if err := sub.Validate(); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid webhook subscription"))
			return
		}

		if err := s.db.SaveWebhookSubscription(r.Context(), &sub); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, &sub)
	}
}

func (s *Server) handleDeleteWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := s.db.DeleteWebhookSubscription(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListDeliveries() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		attempts, err := s.db.ListDeliveryAttempts(r.Context(), id, 100)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, attempts)
	}
}

func (s *Server) handleStartSync() http.HandlerFunc {
	type request struct {
		Type       models.JobType `json:"type"`
		WindowDays int            `json:"windowDays"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		cfg, err := s.requireIntegration(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed sync request"))
			return
		}
		if req.Type == "" {
			req.Type = models.JobTypeAll
		}

		job, err := s.importSvc.StartImport(r.Context(), cfg, req.Type, req.WindowDays)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, job)
	}
}

func (s *Server) handleSyncStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]
		job, err := s.importSvc.GetStatus(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if job == nil {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": string(models.JobStatusIdle)})
			return
		}
		s.writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleCancelSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]
		if !s.importSvc.CancelImport(sessionID) {
			s.writeError(w, apperrors.NewNotFoundError("running sync job", sessionID))
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
	}
}

// openPlatformStore connects to the platform database for the privileged
// operations the REST API does not expose. Requires platformDsn in the
// session's integration config.
func (s *Server) openPlatformStore(ctx context.Context, sessionID string) (*chatwoot.Store, *models.IntegrationConfig, error) {
	cfg, err := s.requireIntegration(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if cfg.PlatformDSN == "" {
		return nil, nil, apperrors.New(apperrors.ErrCodeMissingConfig, "platformDsn is not configured for this session")
	}
	store, err := chatwoot.OpenStore(cfg.PlatformDSN)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to connect to platform database")
	}
	return store, cfg, nil
}

func (s *Server) handleAssignLabels() http.HandlerFunc {
	type request struct {
		Labels []string `json:"labels"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		conversationID, err := strconv.Atoi(vars["id"])
		if err != nil {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "conversation id must be numeric"))
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed label request"))
			return
		}
		if len(req.Labels) == 0 {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "at least one label is required"))
			return
		}

		store, _, err := s.openPlatformStore(r.Context(), vars["sessionId"])
		if err != nil {
			s.writeError(w, err)
			return
		}
		defer store.Close()

		if err := store.AssignLabels(r.Context(), conversationID, req.Labels); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to assign labels"))
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"conversationId": conversationID, "labels": req.Labels})
	}
}

func (s *Server) handleDeleteOrphanContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		store, cfg, err := s.openPlatformStore(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		defer store.Close()

		deleted, err := store.DeleteOrphanContacts(r.Context(), cfg.InboxID)
		if err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to delete orphan contacts"))
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
	}
}

func (s *Server) handleResolve() http.HandlerFunc {
	type request struct {
		ChatID      string `json:"chatId"`
		DisplayName string `json:"displayName,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		cfg, err := s.requireIntegration(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed resolve request"))
			return
		}
		if req.ChatID == "" {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "chatId is required"))
			return
		}

		mapping, err := s.resolver.Resolve(r.Context(), cfg, service.ResolveRequest{
			ChatID:      req.ChatID,
			DisplayName: req.DisplayName,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, mapping)
	}
}

func (s *Server) handleResolveAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		cfg, err := s.requireIntegration(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}

		result, err := s.resolver.ResolveAllConversations(r.Context(), cfg)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleListMappings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]
		mappings, err := s.db.ListIdentityMappings(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, mappings)
	}
}

// handleReset drops all mappings and dedup records for a session. The
// next events rebuild everything from scratch, so this is the escape
// hatch for a corrupted mapping state.
func (s *Server) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]
		if err := s.db.ResetIntegrationState(r.Context(), sessionID); err != nil {
			s.writeError(w, err)
			return
		}
		s.logger.WithField("sessionId", sessionID).Warn("Integration state reset")
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	type request struct {
		ChatID string `json:"chatId"`
		Text   string `json:"text"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed send request"))
			return
		}
		if req.ChatID == "" || req.Text == "" {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "chatId and text are required"))
			return
		}

		resp, err := s.transport.SendText(r.Context(), req.ChatID, req.Text)
		if err != nil {
			s.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeTransportAPI, "failed to send message"))
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) requireIntegration(ctx context.Context, sessionID string) (*models.IntegrationConfig, error) {
	cfg, err := s.db.GetIntegrationConfig(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, apperrors.NewNotFoundError("integration config", sessionID)
	}
	if !cfg.Enabled {
		return nil, apperrors.New(apperrors.ErrCodeMissingConfig, "integration is disabled for this session")
	}
	return cfg, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := map[string]string{
		"error": err.Error(),
		"code":  string(apperrors.GetCode(err)),
	}
	s.writeJSON(w, status, body)
}
