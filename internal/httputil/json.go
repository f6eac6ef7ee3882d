package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

type ErrorResponse struct {
	Status int    `json:"statusCode"`
	Error  string `json:"error"`
	Detail string `json:"message,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error body using the status text as the error name.
func WriteError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Status: status, Error: http.StatusText(status)}
	if err != nil {
		resp.Detail = err.Error()
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON decodes a single JSON value from r's body into v, rejecting
// unknown fields and trailing data.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("request body has trailing data")
	}
	return nil
}
