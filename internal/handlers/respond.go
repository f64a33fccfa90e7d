package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"cloudbill/internal/models"
)

type ctxKey string

const (
	ctxUserID ctxKey = "user_id"
	ctxRole   ctxKey = "role"
)

// WithCaller stores the authenticated identity on ctx.
func WithCaller(ctx context.Context, c models.Caller) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, c.ID)
	return context.WithValue(ctx, ctxRole, c.Role)
}

// callerFrom reads the identity placed by the auth middleware. A missing
// identity yields the zero Caller, which services reject as unauthenticated.
func callerFrom(r *http.Request) models.Caller {
	id, _ := r.Context().Value(ctxUserID).(string)
	role, _ := r.Context().Value(ctxRole).(string)
	return models.Caller{ID: id, Role: role}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers with the status mapped from err's kind.
// Server side failures are logged with the request line.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		if errors.Is(err, models.ErrPersistence) {
			msg = "internal server error"
		}
	}
	writeError(w, status, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body: " + strings.TrimSpace(err.Error()))
	}
	return nil
}

// pathParam reads a segment captured by pat, which stores ":name" in the query.
func pathParam(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(":" + name))
}
