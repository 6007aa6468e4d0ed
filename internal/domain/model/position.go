package model

import (
	"fmt"
	"math"
	"time"
)

const (
	// TimeLayout is the canonical second-precision UTC form used in JSON,
	// CSV and the SQL backends. String order equals chronological order.
	TimeLayout = "2006-01-02 15:04:05"
	// DayLayout is the retention/partition key derived from a timestamp.
	DayLayout = "2006-01-02"
)

// UTCTime is a whole-second UTC instant rendered as TimeLayout in JSON.
type UTCTime struct {
	time.Time
}

// NewUTCTime converts t to UTC and discards sub-second precision.
func NewUTCTime(t time.Time) UTCTime {
	return UTCTime{t.UTC().Truncate(time.Second)}
}

// ParseUTCTime parses the canonical TimeLayout form.
func ParseUTCTime(s string) (UTCTime, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return UTCTime{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return UTCTime{t}, nil
}

func (t UTCTime) String() string { return t.Format(TimeLayout) }

// Day returns the calendar date component, the retention partition key.
func (t UTCTime) Day() string { return t.Format(DayLayout) }

func (t UTCTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(TimeLayout) + `"`), nil
}

func (t *UTCTime) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid timestamp literal %s", b)
	}
	parsed, err := ParseUTCTime(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Position is one observed sample of the tracked object. Immutable once
// stored; the ID is assigned by the store at insertion and is strictly
// increasing in insertion order, not necessarily in timestamp order.
type Position struct {
	ID        int64    `json:"id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude"` // nil when the upstream does not report it
	Timestamp UTCTime  `json:"timestamp"`
	Day       string   `json:"day"`
}

// NewPosition builds an unstored Position (ID zero), deriving Day from the
// timestamp so the two can never disagree.
func NewPosition(lat, lon float64, alt *float64, ts time.Time) Position {
	u := NewUTCTime(ts)
	return Position{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  alt,
		Timestamp: u,
		Day:       u.Day(),
	}
}

// Validate checks the coordinate invariants every stored record must satisfy.
func (p Position) Validate() error {
	if !isFinite(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", p.Latitude)
	}
	if !isFinite(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", p.Longitude)
	}
	if p.Altitude != nil && !isFinite(*p.Altitude) {
		return fmt.Errorf("altitude %v not finite", *p.Altitude)
	}
	if p.Day != p.Timestamp.Day() {
		return fmt.Errorf("day %q does not match timestamp %q", p.Day, p.Timestamp)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
