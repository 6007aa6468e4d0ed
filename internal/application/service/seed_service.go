package service

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// SeedCount is how many synthetic records a seed pass generates.
const SeedCount = 1000

// SeedService fills an empty store with a plausible synthetic history so
// the query surface has something to show on a fresh install.
type SeedService struct {
	store port.Store
}

func NewSeedService(store port.Store) *SeedService {
	return &SeedService{store: store}
}

// SeedIfEmpty inserts n synthetic records, one per minute counting back
// from now, unless the store already holds data. The track follows a
// rough ISS-like ground path: latitude swings inside the orbital
// inclination over a ~93 minute period while longitude drifts westward.
func (s *SeedService) SeedIfEmpty(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		n = SeedCount
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Debug().Int64("records", count).Msg("store not empty, skipping sample data")
		return 0, nil
	}

	log.Info().Int("records", n).Msg("generating sample data")
	now := time.Now().UTC()
	inserted := 0
	for i := 0; i < n; i++ {
		ts := now.Add(-time.Duration(i) * time.Minute)
		lat := 51.6 * math.Sin(2*math.Pi*float64(i)/93)
		lon := -180 + math.Mod(float64(i)*0.72, 360)
		alt := 408.0 + float64(i%20)*0.3

		p := model.NewPosition(lat, lon, &alt, ts)
		if _, err := s.store.Insert(ctx, p); err != nil {
			return inserted, err
		}
		inserted++
	}
	log.Info().Int("records", inserted).Msg("sample data generated")
	return inserted, nil
}
