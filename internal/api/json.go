package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/strikezone/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error  string `json:"error" validate:"required"`
	Kind   string `json:"kind,omitempty"`
	Source string `json:"source,omitempty"`
	Field  string `json:"field,omitempty"`
	URL    string `json:"url,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// analysisErrorBody describes a failed run so clients can point at the
// offending file or setting.
func analysisErrorBody(err error) errResponse {
	body := errResponse{Error: err.Error()}
	var (
		se *apperr.SchemaError
		de *apperr.DuplicateURLError
		ce *apperr.ConfigurationError
	)
	switch {
	case errors.As(err, &se):
		body.Kind, body.Source, body.Field = "schema", se.Source, se.Field
	case errors.As(err, &de):
		body.Kind, body.Source, body.URL = "duplicate_url", de.Source, de.URL
	case errors.As(err, &ce):
		body.Kind, body.Field = "configuration", ce.Field
	}
	return body
}
