// Package handlers exposes the catalog, enrollment, progress and analytics
// services over HTTP. Each handler decodes the request, calls one service
// operation and encodes its result.
package handlers

import (
	"encoding/json"
	"errors"
	"github.com/gorilla/mux"
	"lms-progress/pkg/access"
	"lms-progress/pkg/analytics"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/catalog"
	"lms-progress/pkg/enrollment"
	"lms-progress/pkg/middleware"
	"lms-progress/pkg/progress"
	"log/slog"
	"net/http"
	"strconv"
)

type Handler struct {
	catalog    *catalog.Catalog
	enrollment *enrollment.Workflow
	progress   *progress.Tracker
	analytics  *analytics.Aggregator
	logger     *slog.Logger
}

func New(c *catalog.Catalog, e *enrollment.Workflow, p *progress.Tracker, a *analytics.Aggregator, logger *slog.Logger) *Handler {
	return &Handler{catalog: c, enrollment: e, progress: p, analytics: a, logger: logger}
}

type errorBody struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields,omitempty"`
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidRole, apperr.KindAttemptsExceeded:
		return http.StatusForbidden
	case apperr.KindAlreadyEnrolled, apperr.KindDuplicateRequest, apperr.KindPreviouslyRejected, apperr.KindNotPending:
		return http.StatusConflict
	case apperr.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errNoPrincipal) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorBody{Error: kind.String(), Message: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: kind.String(), Message: err.Error(), Fields: apperr.FieldsOf(err)})
}

func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("malformed request body: " + err.Error())
	}
	return nil
}

// idParam reads a positive numeric path variable.
func idParam(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid "+name, apperr.FieldError{Field: name, Error: "must be a positive integer"})
	}
	return uint(id), nil
}

var errNoPrincipal = errors.New("no principal in request context")

func principal(r *http.Request) (access.Principal, error) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		return access.Principal{}, errNoPrincipal
	}
	return p, nil
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
