// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
)

// IDResponse is returned by create and update endpoints.
type IDResponse struct {
	ID string `json:"id"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthInfoResponse is the body of GET /health/info.
type HealthInfoResponse struct {
	App   string         `json:"app"`
	Stats map[string]any `json:"stats"`
}

// Date accepts "2006-01-02" or RFC 3339 and marshals as "2006-01-02".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	d.Time = t.UTC()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// datePtr converts an optional Date.
func datePtr(d *Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// parseProductID parses a line's product id; lineNo is 1-based.
func parseProductID(raw string, lineNo int) (id.ID, error) {
	pid, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), apperror.NewInvalidLine(lineNo, "product id is not a valid id").
			WithDetail("productId", raw)
	}
	return pid, nil
}
