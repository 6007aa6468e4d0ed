package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFetch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFetch("ok", 0.123)
	m.RecordFetch("ok", 0.2)
	m.RecordFetch("fetch_error", 0.5)
	m.RecordFetch("rejected", 0.01)

	if got := testutil.ToFloat64(m.FetchTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok fetches, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchTotal.WithLabelValues("fetch_error")); got != 1 {
		t.Errorf("expected 1 failed fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("expected 1 rejected fetch, got %v", got)
	}
	if count := testutil.CollectAndCount(m.FetchDuration); count != 1 {
		t.Errorf("expected the duration histogram to collect, got %d", count)
	}
}

func TestInsertAndEvictCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordInsert()
	m.RecordInsert()
	m.RecordEvicted(17)

	if got := testutil.ToFloat64(m.PositionsInserted); got != 2 {
		t.Errorf("expected 2 inserts, got %v", got)
	}
	if got := testutil.ToFloat64(m.PositionsEvicted); got != 17 {
		t.Errorf("expected 17 evicted, got %v", got)
	}
}

func TestStoreGaugeAndSinkErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetStoreRecords(4321)
	if got := testutil.ToFloat64(m.StoreRecords); got != 4321 {
		t.Errorf("expected gauge 4321, got %v", got)
	}

	m.RecordSinkError("mqtt")
	m.RecordSinkError("mqtt")
	m.RecordSinkError("websocket")
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("mqtt")); got != 2 {
		t.Errorf("expected 2 mqtt sink errors, got %v", got)
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("websocket")); got != 1 {
		t.Errorf("expected 1 websocket sink error, got %v", got)
	}
}

func TestRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordInsert()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "satrack_positions_inserted_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected the counters on the provided registry")
	}
}
