package httputil

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

const DefaultTimeout = 10 * time.Second

// NewClient returns an HTTP client for talking to the stationgroups API.
// A zero timeout means DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// StatusError is returned by GetJSON for non-200 responses.
type StatusError struct {
	URL      string
	Response ErrorResponse
}

func (e *StatusError) Error() string {
	if e.Response.Detail != "" {
		return fmt.Sprintf("GET %s: %d %s: %s", e.URL, e.Response.Status, e.Response.Error, e.Response.Detail)
	}
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Response.Status, e.Response.Error)
}

// GetJSON fetches url and decodes a 200 response into out.
func GetJSON(ctx context.Context, c *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{URL: url}
		if err := json.NewDecoder(resp.Body).Decode(&se.Response); err != nil || se.Response.Status == 0 {
			se.Response = ErrorResponse{Status: resp.StatusCode, Error: http.StatusText(resp.StatusCode)}
		}
		return se
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
