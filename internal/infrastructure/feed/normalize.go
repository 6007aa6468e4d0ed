package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// rawPayload covers both upstream shapes in one decode. When the nested
// iss_position block is present it wins shape detection and the top-level
// coordinate fields are ignored.
type rawPayload struct {
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	Altitude  json.RawMessage `json:"altitude"`
	Timestamp json.RawMessage `json:"timestamp"`
	Nested    *struct {
		Latitude  json.RawMessage `json:"latitude"`
		Longitude json.RawMessage `json:"longitude"`
	} `json:"iss_position"`
}

// Normalize converts a raw upstream JSON body into a canonical Position.
// Payloads without a usable latitude or longitude are rejected outright.
// A missing or unusable altitude never blocks the record; it is stored as
// absent. A missing or non-numeric timestamp falls back to receivedAt.
func Normalize(body []byte, receivedAt time.Time) (model.Position, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.Position{}, fmt.Errorf("%w: undecodable body: %v", port.ErrRejected, err)
	}

	latRaw, lonRaw, altRaw := raw.Latitude, raw.Longitude, raw.Altitude
	if raw.Nested != nil {
		latRaw, lonRaw = raw.Nested.Latitude, raw.Nested.Longitude
		altRaw = nil // nested shape never reports altitude
	}

	lat, ok := numeric(latRaw)
	if !ok {
		return model.Position{}, fmt.Errorf("%w: missing numeric latitude", port.ErrRejected)
	}
	lon, ok := numeric(lonRaw)
	if !ok {
		return model.Position{}, fmt.Errorf("%w: missing numeric longitude", port.ErrRejected)
	}

	// ParseFloat admits quoted "NaN" and "Inf"; both count as unusable
	var alt *float64
	if v, ok := numeric(altRaw); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
		alt = &v
	}

	ts := receivedAt
	if sec, ok := numeric(raw.Timestamp); ok {
		ts = time.Unix(int64(sec), 0)
	}

	p := model.NewPosition(lat, lon, alt, ts)
	if err := p.Validate(); err != nil {
		return model.Position{}, fmt.Errorf("%w: %v", port.ErrRejected, err)
	}
	return p, nil
}

// numeric extracts a float from a JSON fragment that may be a bare number
// or a quoted numeric string (open-notify reports coordinates as strings).
func numeric(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
