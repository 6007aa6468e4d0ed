package feed

import (
	"errors"
	"testing"
	"time"

	"satrack/internal/application/port"
)

func TestNormalizeFlatShape(t *testing.T) {
	body := []byte(`{"latitude":45.5,"longitude":-73.6,"altitude":417.25,"timestamp":1700000000}`)
	p, err := Normalize(body, time.Now())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if p.Latitude != 45.5 || p.Longitude != -73.6 {
		t.Errorf("unexpected coordinates: %v, %v", p.Latitude, p.Longitude)
	}
	if p.Altitude == nil || *p.Altitude != 417.25 {
		t.Errorf("expected altitude 417.25, got %v", p.Altitude)
	}
	want := time.Unix(1700000000, 0).UTC().Format("2006-01-02 15:04:05")
	if p.Timestamp.String() != want {
		t.Errorf("expected timestamp %s, got %s", want, p.Timestamp)
	}
	if p.Day != want[:10] {
		t.Errorf("expected day %s, got %s", want[:10], p.Day)
	}
}

func TestNormalizeNestedShape(t *testing.T) {
	body := []byte(`{"iss_position":{"latitude":"10.5","longitude":"20.1"},"timestamp":1700000000,"message":"success"}`)
	p, err := Normalize(body, time.Now())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if p.Latitude != 10.5 || p.Longitude != 20.1 {
		t.Errorf("unexpected coordinates: %v, %v", p.Latitude, p.Longitude)
	}
	if p.Altitude != nil {
		t.Errorf("nested shape must not carry altitude, got %v", *p.Altitude)
	}
}

// The nested block shadows any top-level fields, including altitude.
func TestNormalizeNestedShadowsTopLevel(t *testing.T) {
	body := []byte(`{"latitude":1,"longitude":2,"altitude":400,"iss_position":{"latitude":"10.5","longitude":"20.1"}}`)
	p, err := Normalize(body, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if p.Latitude != 10.5 || p.Longitude != 20.1 {
		t.Errorf("expected nested coordinates, got %v, %v", p.Latitude, p.Longitude)
	}
	if p.Altitude != nil {
		t.Errorf("expected absent altitude, got %v", *p.Altitude)
	}
}

func TestNormalizeRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"null latitude", `{"latitude":null,"longitude":20.1}`},
		{"missing longitude", `{"latitude":10.5}`},
		{"string garbage latitude", `{"latitude":"north","longitude":20.1}`},
		{"nested missing longitude", `{"iss_position":{"latitude":"10.5"}}`},
		{"empty nested block", `{"iss_position":{},"latitude":1,"longitude":2}`},
		{"latitude out of range", `{"latitude":134.0,"longitude":20.1}`},
		{"not json", `<html>502</html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize([]byte(tc.body), time.Now())
			if err == nil {
				t.Fatalf("expected rejection for %s", tc.body)
			}
			if !errors.Is(err, port.ErrRejected) {
				t.Errorf("rejection must wrap port.ErrRejected, got %v", err)
			}
		})
	}
}

func TestNormalizeAltitudeCoercedToAbsent(t *testing.T) {
	for _, body := range []string{
		`{"latitude":10.5,"longitude":20.1}`,
		`{"latitude":10.5,"longitude":20.1,"altitude":null}`,
		`{"latitude":10.5,"longitude":20.1,"altitude":"unknown"}`,
		`{"latitude":10.5,"longitude":20.1,"altitude":"NaN"}`,
		`{"latitude":10.5,"longitude":20.1,"altitude":"Inf"}`,
		`{"latitude":10.5,"longitude":20.1,"altitude":"-Infinity"}`,
	} {
		p, err := Normalize([]byte(body), time.Now())
		if err != nil {
			t.Fatalf("Normalize(%s) failed: %v", body, err)
		}
		if p.Altitude != nil {
			t.Errorf("Normalize(%s): expected absent altitude, got %v", body, *p.Altitude)
		}
	}
}

func TestNormalizeTimestampFallback(t *testing.T) {
	received := time.Date(2025, 2, 3, 4, 5, 6, 789e6, time.UTC)
	for _, body := range []string{
		`{"latitude":10.5,"longitude":20.1}`,
		`{"latitude":10.5,"longitude":20.1,"timestamp":"soon"}`,
		`{"latitude":10.5,"longitude":20.1,"timestamp":null}`,
	} {
		p, err := Normalize([]byte(body), received)
		if err != nil {
			t.Fatalf("Normalize(%s) failed: %v", body, err)
		}
		if got := p.Timestamp.String(); got != "2025-02-03 04:05:06" {
			t.Errorf("Normalize(%s): expected fallback timestamp, got %s", body, got)
		}
	}
}

func TestNormalizeStringTimestamp(t *testing.T) {
	// Quoted epoch seconds still count as numeric.
	body := []byte(`{"latitude":10.5,"longitude":20.1,"timestamp":"1700000000"}`)
	p, err := Normalize(body, time.Now())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := time.Unix(1700000000, 0).UTC().Format("2006-01-02 15:04:05")
	if p.Timestamp.String() != want {
		t.Errorf("expected timestamp %s, got %s", want, p.Timestamp)
	}
}
