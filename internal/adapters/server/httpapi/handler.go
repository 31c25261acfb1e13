// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hylla/reqtrack/internal/adapters/auth"
	"github.com/hylla/reqtrack/internal/adapters/server/common"
	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// TokenVerifier validates one bearer token and returns the session actor.
type TokenVerifier interface {
	Verify(raw string) (domain.Actor, error)
}

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	tracker  common.TrackerService
	verifier TokenVerifier
	router   chi.Router
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the tracker service.
//
// A nil verifier leaves the mutating routes unauthenticated; the service then
// rejects them for lack of a session actor.
func NewHandler(tracker common.TrackerService, verifier TokenVerifier) *Handler {
	h := &Handler{
		tracker:  tracker,
		verifier: verifier,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, APIError{
			Code:    "method_not_allowed",
			Message: "method not allowed",
		})
	})

	r.Get("/timeline", h.handleWeeklyTimeline)
	r.Get("/blockers", h.handleActiveBlockers)
	r.Group(func(pr chi.Router) {
		pr.Use(h.session)
		pr.Post("/blockers/{request_id}/resolve", h.handleResolveBlocker)
		pr.Post("/activities", h.handleRecordActivity)
	})
	h.router = r
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// session attaches the bearer-token actor, when present, to the request context.
func (h *Handler) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || h.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := auth.BearerToken(header)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, APIError{
				Code:    "unauthenticated",
				Message: "authorization header must use the Bearer scheme",
			})
			return
		}
		actor, err := h.verifier.Verify(raw)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, APIError{
				Code:    "unauthenticated",
				Message: err.Error(),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(app.WithActor(r.Context(), actor)))
	})
}

// handleWeeklyTimeline serves GET `/timeline`.
func (h *Handler) handleWeeklyTimeline(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeServiceUnavailable(w)
		return
	}
	offset, err := queryInt(r, "week_offset")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	timeline, err := h.tracker.WeeklyTimeline(r.Context(), common.WeeklyTimelineRequest{
		WeekOffset: offset,
		ActorID:    strings.TrimSpace(r.URL.Query().Get("actor_id")),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

// handleActiveBlockers serves GET `/blockers`.
func (h *Handler) handleActiveBlockers(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeServiceUnavailable(w)
		return
	}
	fiscalYear, err := queryInt(r, "fiscal_year")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	blockers, err := h.tracker.ActiveBlockers(r.Context(), common.ActiveBlockersRequest{
		TeamID:     strings.TrimSpace(r.URL.Query().Get("team_id")),
		FiscalYear: fiscalYear,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blockers)
}

// handleResolveBlocker serves POST `/blockers/{request_id}/resolve`.
func (h *Handler) handleResolveBlocker(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeServiceUnavailable(w)
		return
	}
	var payload common.ResolveBlockerRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req := common.ResolveBlockerRequest{
		RequestID:      strings.TrimSpace(chi.URLParam(r, "request_id")),
		BlockerEntryID: strings.TrimSpace(payload.BlockerEntryID),
	}
	entry, err := h.tracker.ResolveBlocker(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleRecordActivity serves POST `/activities`.
func (h *Handler) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeServiceUnavailable(w)
		return
	}
	var req common.RecordActivityRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	entry, err := h.tracker.RecordActivity(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// queryInt parses one optional integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, common.ErrInvalidRequest)
	}
	return v, nil
}

// writeServiceUnavailable reports a handler without a backing service.
func writeServiceUnavailable(w http.ResponseWriter) {
	writeJSONError(w, http.StatusServiceUnavailable, APIError{
		Code:    "service_unavailable",
		Message: "tracker service is not configured",
	})
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, APIError{
			Code:    "canceled",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "unavailable",
			Message: err.Error(),
			Hint:    "The activity store is unreachable; retry the request.",
		})
	case errors.Is(err, common.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthenticated",
			Message: err.Error(),
			Hint:    "Send an Authorization: Bearer <token> header.",
		})
	case errors.Is(err, common.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, APIError{
			Code:    "forbidden",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "no_open_blocker",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
