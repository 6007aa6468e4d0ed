package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewUTCTimeTruncatesToSecond(t *testing.T) {
	in := time.Date(2025, 1, 2, 3, 4, 5, 987654321, time.UTC)
	got := NewUTCTime(in)

	if got.Nanosecond() != 0 {
		t.Errorf("expected whole seconds, got %dns", got.Nanosecond())
	}
	if got.String() != "2025-01-02 03:04:05" {
		t.Errorf("unexpected canonical form: %s", got)
	}
}

func TestNewUTCTimeConvertsZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	in := time.Date(2025, 6, 1, 1, 30, 0, 0, loc)

	got := NewUTCTime(in)
	if got.String() != "2025-05-31 23:30:00" {
		t.Errorf("expected UTC conversion, got %s", got)
	}
	if got.Day() != "2025-05-31" {
		t.Errorf("day should follow the UTC date, got %s", got.Day())
	}
}

func TestParseUTCTimeRoundTrip(t *testing.T) {
	ts, err := ParseUTCTime("2025-11-09 18:22:41")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if ts.String() != "2025-11-09 18:22:41" {
		t.Errorf("round trip mismatch: %s", ts)
	}

	if _, err := ParseUTCTime("2025-11-09T18:22:41Z"); err == nil {
		t.Error("RFC3339 input should be rejected")
	}
}

func TestPositionDayDerivation(t *testing.T) {
	p := NewPosition(10.5, 20.1, nil, time.Date(2025, 3, 15, 23, 59, 59, 0, time.UTC))
	if p.Day != "2025-03-15" {
		t.Errorf("day = %s, want 2025-03-15", p.Day)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("valid position rejected: %v", err)
	}
}

func TestPositionValidateBounds(t *testing.T) {
	alt := 408.0
	cases := []struct {
		name string
		pos  Position
		ok   bool
	}{
		{"valid", NewPosition(51.6, -122.3, &alt, time.Now()), true},
		{"lat high", NewPosition(90.01, 0, nil, time.Now()), false},
		{"lat low", NewPosition(-91, 0, nil, time.Now()), false},
		{"lon high", NewPosition(0, 180.5, nil, time.Now()), false},
		{"lon low", NewPosition(0, -181, nil, time.Now()), false},
		{"edges", NewPosition(-90, 180, nil, time.Now()), true},
	}

	for _, tc := range cases {
		err := tc.pos.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestPositionValidateDayMismatch(t *testing.T) {
	p := NewPosition(0, 0, nil, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	p.Day = "2025-01-02"
	if err := p.Validate(); err == nil {
		t.Error("mismatched day should fail validation")
	}
}

func TestPositionJSONShape(t *testing.T) {
	alt := 417.25
	p := NewPosition(45.5, -73.6, &alt, time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC))
	p.ID = 7

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"id":7,"latitude":45.5,"longitude":-73.6,"altitude":417.25,"timestamp":"2025-02-03 04:05:06","day":"2025-02-03"}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}

	p.Altitude = nil
	b, _ = json.Marshal(p)
	if string(b) != `{"id":7,"latitude":45.5,"longitude":-73.6,"altitude":null,"timestamp":"2025-02-03 04:05:06","day":"2025-02-03"}` {
		t.Errorf("absent altitude should render null, got %s", b)
	}
}
