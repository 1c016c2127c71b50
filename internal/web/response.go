package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Respond converts a Go value to JSON and sends it to the client.
func Respond(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	_, span := AddSpan(ctx, "internal.web.Respond")
	defer span.End()

	SetStatusCode(ctx, statusCode)

	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	bs, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if _, err := w.Write(bs); err != nil {
		return err
	}

	return nil
}

// RespondError sends an error body in the {"error": msg} shape the
// clients expect.
func RespondError(ctx context.Context, w http.ResponseWriter, msg string, statusCode int) error {
	return Respond(ctx, w, ErrorResponse{Error: msg}, statusCode)
}

// ErrorResponse is the form used for API responses from failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Decode reads the body of an HTTP request looking for a JSON document.
func Decode(r *http.Request, val any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(val); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	return nil
}
