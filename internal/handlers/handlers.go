package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/julienbonastre/fullstock/internal/config"
	"github.com/julienbonastre/fullstock/internal/database"
	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/logger"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
	"github.com/julienbonastre/fullstock/internal/middleware"
	"github.com/julienbonastre/fullstock/internal/syncer"
	"github.com/julienbonastre/fullstock/pkg/apierror"
)

// sessionName is the cookie carrying the PKCE session id
const sessionName = "fullstock_session"

// Deps holds the collaborators of the HTTP handlers
type Deps struct {
	Config    *config.Config
	DB        *database.DB
	Client    *mercadolivre.Client
	Syncer    *syncer.Service
	Connector *syncer.Connector
	Sessions  sessions.Store
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	cfg       *config.Config
	db        *database.DB
	ml        *mercadolivre.Client
	syncer    *syncer.Service
	connector *syncer.Connector
	sessions  sessions.Store
	now       func() time.Time
	log       *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(d Deps) *Handler {
	return &Handler{
		cfg:       d.Config,
		db:        d.DB,
		ml:        d.Client,
		syncer:    d.Syncer,
		connector: d.Connector,
		sessions:  d.Sessions,
		now:       time.Now,
		log:       logger.L().With(zap.String("component", "handlers")),
	}
}

// demoMode reports whether the app runs without Mercado Livre credentials
func (h *Handler) demoMode() bool {
	return !h.ml.IsConfigured()
}

// JSON response helper
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L().Warn("error encoding JSON", zap.Error(err))
	}
}

// decodeJSON reads a request body into v
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierror.BadRequest("Invalid request body")
	}
	return nil
}

// writeError maps a domain error to its HTTP response
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("user_id", middleware.GetUserID(r.Context())),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Error(err),
	}
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("request failed", fields...)
	} else {
		h.log.Info("request rejected", append(fields, zap.String("code", apiErr.Code))...)
	}
	apiErr.Write(w)
}

func toAPIError(err error) *apierror.Error {
	var (
		apiErr     *apierror.Error
		validation *inventory.ValidationError
		exchange   *mercadolivre.ExchangeError
		transport  *mercadolivre.TransportError
		upstream   *mercadolivre.APIError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &validation):
		return apierror.Validation(validation.Error())
	case errors.Is(err, syncer.ErrDisconnected):
		return apierror.Validation(err.Error())
	case errors.Is(err, syncer.ErrSessionExpired), errors.Is(err, mercadolivre.ErrUnauthorized):
		return apierror.SessionExpired(syncer.ErrSessionExpired.Error())
	case errors.Is(err, syncer.ErrStateMismatch):
		return apierror.BadRequest(err.Error())
	case errors.Is(err, mercadolivre.ErrVerifierNotFound):
		return apierror.BadRequest("No pending Mercado Livre authorization for this session. Please start the connection again.")
	case errors.Is(err, mercadolivre.ErrNotConfigured):
		return apierror.NotConfigured(err.Error())
	case errors.As(err, &exchange):
		if exchange.StatusCode >= http.StatusInternalServerError {
			return apierror.BadGateway(exchange.Message)
		}
		return apierror.BadRequest(exchange.Message)
	case errors.As(err, &transport), errors.As(err, &upstream):
		return apierror.BadGateway("Could not reach Mercado Livre, please try again")
	case errors.Is(err, database.ErrNotFound):
		return apierror.NotFound("")
	case errors.Is(err, database.ErrDuplicateSKU):
		return apierror.Conflict(err.Error())
	default:
		return apierror.InternalError("")
	}
}

// HealthCheck returns API health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.db.PingContext(r.Context()); err != nil {
		status = "degraded"
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":     status,
		"configured": h.ml.IsConfigured(),
		"demo":       h.demoMode(),
	})
}
