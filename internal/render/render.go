package render

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/templui/piggybank/internal/apperr"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Total   *int       `json:"total,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    apperr.Kind    `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, Envelope{Success: true, Data: data})
}

// Paged writes one page of a list together with the total row count.
func Paged(w http.ResponseWriter, r *http.Request, data any, total int) {
	write(w, r, http.StatusOK, Envelope{Success: true, Data: data, Total: &total})
}

// Error maps err to its status code. Internal errors are logged and their cause
// is not exposed.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	status := e.StatusCode()

	body := &ErrorBody{Kind: e.Kind, Message: e.Message, Details: e.Details}
	if len(body.Details) == 0 {
		body.Details = nil
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "kind", e.Kind, "method", r.Method, "path", r.URL.Path)
	} else {
		slog.Debug("request refused", "error", err, "kind", e.Kind, "path", r.URL.Path)
	}

	if e.Retryable() {
		w.Header().Set("Retry-After", "5")
	}
	write(w, r, status, Envelope{Success: false, Error: body})
}

func write(w http.ResponseWriter, r *http.Request, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("render json failed", "error", err, "path", r.URL.Path)
	}
}
