package api

import (
	"fmt"
	"net/http"
	"time"
)

// parseDate reads the optional ?date= parameter. Both a bare date and an
// RFC 3339 timestamp are accepted; without one the caller's today is used.
func parseDate(r *http.Request, today time.Time) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return today, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", raw)
}
