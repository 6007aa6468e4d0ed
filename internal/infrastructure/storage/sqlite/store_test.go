package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
	"satrack/internal/infrastructure/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) port.Store {
		s, err := New(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("failed to open sqlite store: %v", err)
		}
		return s
	})
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	alt := 417.0
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	id, err := s.Insert(ctx, model.NewPosition(45.5, -73.6, &alt, ts))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// second open runs the migration again on the same file
	s, err = New(path)
	if err != nil {
		t.Fatalf("failed to reopen sqlite store: %v", err)
	}
	defer s.Close()

	latest, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != id {
		t.Errorf("expected id %d after reopen, got %d", id, latest.ID)
	}
	if latest.Timestamp.String() != "2025-03-10 12:00:00" {
		t.Errorf("unexpected timestamp after reopen: %s", latest.Timestamp)
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("expected parent directories to be created: %v", err)
	}
	defer s.Close()

	if _, err := s.Count(context.Background()); err != nil {
		t.Errorf("Count on fresh store failed: %v", err)
	}
}

func TestStreamHandlesLargeSets(t *testing.T) {
	// more rows than one keyset batch so pagination inside Stream kicks in
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	total := streamBatch*2 + 37
	for i := 0; i < total; i++ {
		alt := 417.0
		p := model.NewPosition(45.5, -73.6, &alt, base.Add(time.Duration(i)*time.Second))
		if _, err := s.Insert(ctx, p); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	var seen int
	var prev int64
	err = s.Stream(ctx, "", func(p model.Position) error {
		if p.ID <= prev {
			t.Fatalf("ids must ascend with equal-second-free data: %d after %d", p.ID, prev)
		}
		prev = p.ID
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if seen != total {
		t.Errorf("expected %d rows streamed, got %d", total, seen)
	}
}
