package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hostbook/internal/config"
	"hostbook/internal/domain"
	"hostbook/internal/service"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the reservation API.
type HTTPServer struct {
	cfg          config.APIConfig
	bookings     *service.BookingService
	availability *service.AvailabilityService
	auth         *HTTPAuth
	logger       *zerolog.Logger
	server       *http.Server
}

func NewHTTPServer(
	cfg config.APIConfig,
	bookings *service.BookingService,
	availability *service.AvailabilityService,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:          cfg,
		bookings:     bookings,
		availability: availability,
		auth:         NewHTTPAuth(cfg),
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	mux.HandleFunc("GET /api/v1/hosts/{hostID}/availability", srv.handleAvailability)
	mux.HandleFunc("GET /api/v1/hosts/{hostID}/rules", srv.handleListRules)
	mux.HandleFunc("POST /api/v1/hosts/{hostID}/rules", srv.handleCreateRule)
	mux.HandleFunc("DELETE /api/v1/hosts/{hostID}/rules/{ruleID}", srv.handleDeleteRule)
	mux.HandleFunc("GET /api/v1/hosts/{hostID}/overrides", srv.handleListOverrides)
	mux.HandleFunc("POST /api/v1/hosts/{hostID}/overrides", srv.handleCreateOverride)
	mux.HandleFunc("DELETE /api/v1/hosts/{hostID}/overrides/{overrideID}", srv.handleDeleteOverride)

	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", srv.handleListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{bookingID}", srv.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{bookingID}/{action}", srv.handleTransition)

	mux.HandleFunc("GET /api/v1/admin/stale-authorizations", srv.handleStaleAuthorizations)

	handler := requestIDMiddleware(loggingMiddleware(logger, srv.auth.Wrap(mux)))

	port := cfg.HTTP.Port
	if port == 0 {
		port = 8080
	}
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]errorBody{"error": {Code: code, Message: message}})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		s.logger.Error().
			Err(err).
			Str("request_id", requestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("Unhandled error")
		writeError(w, http.StatusInternalServerError, domain.CodeInternal, "internal error")
		return
	}

	statusCode := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindValidation:
		statusCode = http.StatusUnprocessableEntity
	case domain.KindConflict, domain.KindState:
		statusCode = http.StatusConflict
	case domain.KindAuthorization:
		statusCode = http.StatusForbidden
	case domain.KindPayment:
		statusCode = http.StatusPaymentRequired
	case domain.KindNotFound:
		statusCode = http.StatusNotFound
	}

	writeJSON(w, statusCode, map[string]errorBody{"error": {
		Code:      de.Code,
		Message:   de.Message,
		Retryable: de.Retryable,
	}})
}
