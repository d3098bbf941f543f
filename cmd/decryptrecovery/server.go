package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/httputil"
	"decryptrecovery/internal/middleware"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/service"
	"decryptrecovery/internal/tracing"
	"decryptrecovery/pkg/signal/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// PlaceholderReader loads single placeholders.
type PlaceholderReader interface {
	Get(ctx context.Context, id string) (*models.Placeholder, error)
}

// TimelineReader reads and marks thread timelines.
type TimelineReader interface {
	Timeline(ctx context.Context, threadID string) ([]models.TimelineEntry, error)
	MarkThreadRead(ctx context.Context, threadID string) (int, error)
	View(entries []models.TimelineEntry) []service.TimelineEntryView
}

// SweepTrigger runs an expiry pass on demand.
type SweepTrigger interface {
	RunSweep(ctx context.Context) (int, error)
}

// HealthChecker reports whether the store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Services groups what the HTTP layer dispatches to.
type Services struct {
	Pipeline     service.DecryptionPipeline
	Placeholders PlaceholderReader
	Timeline     TimelineReader
	Sweeper      SweepTrigger
	Health       HealthChecker
	// Events serves the websocket change feed. Optional.
	Events http.Handler
	Clock  clock.Clock
}

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	cfg      *models.Config
	services Services
	verbose  bool
	server   *http.Server
}

func NewServer(cfg *models.Config, services Services, logger *logrus.Logger, verbose bool) *Server {
	if services.Clock == nil {
		services.Clock = clock.Real{}
	}
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		cfg:      cfg,
		services: services,
		verbose:  verbose,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, routeTemplate))
	s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// Receive pipeline
	decryption := s.router.PathPrefix("/v1/decryption").Subrouter()
	decryption.Handle("/failures",
		middleware.PipelineObservabilityMiddleware(s.logger, "failure")(s.handleDecryptionFailure()),
	).Methods(http.MethodPost)
	decryption.Handle("/successes",
		middleware.PipelineObservabilityMiddleware(s.logger, "success")(s.handleDecryptionSuccess()),
	).Methods(http.MethodPost)

	// Timeline queries
	v1 := s.router.PathPrefix("/v1").Subrouter()
	// Timeline and admin routes expose plaintext or change state, so they
	// carry a request signature whenever a secret is configured.
	v1.Handle("/placeholders/{id}", s.requireSignature(s.handleGetPlaceholder())).Methods(http.MethodGet)
	v1.Handle("/threads/{thread}/timeline", s.requireSignature(s.handleTimeline())).Methods(http.MethodGet)
	v1.Handle("/threads/{thread}/read", s.requireSignature(s.handleMarkRead())).Methods(http.MethodPost)
	v1.Handle("/admin/sweep", s.requireSignature(s.handleSweep())).Methods(http.MethodPost)
	if s.services.Events != nil {
		v1.Handle("/events", s.requireSignature(s.services.Events)).Methods(http.MethodGet)
	}
}

// routeTemplate labels metrics with the matched route template so that ids
// in the path do not become label values.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := types.HealthResponse{Status: "ok", Database: "ok", Version: Version}
		status := http.StatusOK

		if s.services.Health != nil {
			if err := s.services.Health.Ping(r.Context()); err != nil {
				s.logger.WithError(err).Warn("Health check failed: database unreachable")
				resp.Status = "degraded"
				resp.Database = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}
		_ = httputil.WriteJSON(w, status, resp)
	}
}

// readSigned bounds and authenticates a pipeline request body.
func (s *Server) readSigned(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	httputil.LimitBody(w, r, constants.DefaultMaxRequestBodyBytes)
	return verifySignature(r, s.cfg.Server.WebhookSecret, SignatureHeader)
}

func (s *Server) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.LimitBody(w, r, constants.DefaultMaxRequestBodyBytes)
		if err := verifyRequestSignature(r, s.cfg.Server.WebhookSecret, SignatureHeader); err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) pipelineContext(r *http.Request) context.Context {
	return service.WithVerboseLogging(r.Context(), s.verbose)
}

func (s *Server) handleDecryptionFailure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := s.readSigned(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var env types.FailedEnvelope
		if err := httputil.DecodeJSON(body, &env); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.services.Pipeline.OnDecryptionFailure(s.pipelineContext(r), &env, env.GroupID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		status := http.StatusCreated
		if result.Placeholder == nil {
			status = http.StatusOK
		}
		_ = httputil.WriteJSON(w, status, result)
	}
}

func (s *Server) handleDecryptionSuccess() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := s.readSigned(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var msg types.DecryptedMessage
		if err := httputil.DecodeJSON(body, &msg); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.services.Pipeline.OnDecryptionSuccess(s.pipelineContext(r), msg.Body, msg.SenderAddress(), msg.GroupID, msg.Timestamp.Int64())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, result)
	}
}

type placeholderResponse struct {
	Placeholder *models.Placeholder  `json:"placeholder"`
	Status      models.DisplayStatus `json:"status"`
	StatusText  string               `json:"statusText"`
	Replaceable bool                 `json:"replaceable"`
}

func (s *Server) handleGetPlaceholder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.services.Placeholders.Get(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		now := s.services.Clock.Now()
		status := p.DisplayStatus(now)
		_ = httputil.WriteJSON(w, http.StatusOK, placeholderResponse{
			Placeholder: p,
			Status:      status,
			StatusText:  status.Text(),
			Replaceable: p.IsReplaceable(now),
		})
	}
}

type timelineResponse struct {
	ThreadID string                      `json:"threadId"`
	Unread   int                         `json:"unread"`
	Entries  []service.TimelineEntryView `json:"entries"`
}

func (s *Server) handleTimeline() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := mux.Vars(r)["thread"]
		entries, err := s.services.Timeline.Timeline(r.Context(), threadID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		_ = httputil.WriteJSON(w, http.StatusOK, timelineResponse{
			ThreadID: threadID,
			Unread:   models.UnreadCount(entries),
			Entries:  s.services.Timeline.View(entries),
		})
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marked, err := s.services.Timeline.MarkThreadRead(r.Context(), mux.Vars(r)["thread"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, types.ReadResponse{Marked: marked})
	}
}

func (s *Server) handleSweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expired, err := s.services.Sweeper.RunSweep(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.logger.WithField(service.LogFieldCount, expired).Info("Manual placeholder sweep completed")
		_ = httputil.WriteJSON(w, http.StatusOK, types.SweepResponse{Expired: expired})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httputil.WriteError(w, r, err)
	if status < http.StatusInternalServerError {
		return
	}
	requestInfo := tracing.GetRequestInfo(r.Context())
	s.logger.WithFields(logrus.Fields{
		service.LogFieldRequestID: requestInfo.RequestID,
		service.LogFieldTraceID:   requestInfo.TraceID,
		service.LogFieldURL:       r.URL.Path,
	}).WithError(err).Error("Request failed")
}
