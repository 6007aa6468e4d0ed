package service

import (
	"context"
	"errors"
	"math"
	"time"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// Validation failures the transport layer maps to client errors.
var (
	ErrInvalidPage = errors.New("page must be >= 1")
	ErrInvalidDay  = errors.New("day must be formatted YYYY-MM-DD")
)

const defaultPageSize = 100

// RecordsPage is one page of stored positions plus the day keys a caller
// needs to build a day selector.
type RecordsPage struct {
	Records       []model.Position `json:"records"`
	Total         int64            `json:"total"`
	Page          int              `json:"page"`
	PageSize      int              `json:"page_size"`
	TotalPages    int              `json:"total_pages"`
	AvailableDays []string         `json:"available_days"`
}

// Stats summarizes the retained series at call time.
type Stats struct {
	TotalRecords         int64            `json:"total_records"`
	TotalHours           float64          `json:"total_hours"`
	TotalDays            int              `json:"total_days"`
	RecordsPerDay        map[string]int64 `json:"records_per_day"`
	FetchIntervalSeconds int              `json:"fetch_interval_seconds"`
	RetentionDays        int              `json:"retention_days"`
}

// QueryService answers read requests against the store.
type QueryService struct {
	store         port.Store
	maxPageSize   int
	fetchInterval time.Duration
	retentionDays int
}

func NewQueryService(store port.Store, maxPageSize int, fetchInterval time.Duration, retentionDays int) *QueryService {
	if maxPageSize <= 0 {
		maxPageSize = 500
	}
	return &QueryService{
		store:         store,
		maxPageSize:   maxPageSize,
		fetchInterval: fetchInterval,
		retentionDays: retentionDays,
	}
}

// Current returns the most recently stored position; port.ErrNoData when
// nothing has been collected yet.
func (s *QueryService) Current(ctx context.Context) (model.Position, error) {
	return s.store.Latest(ctx)
}

// Records returns one validated page. page must be >= 1; pageSize falls
// back to a default when non-positive and is clamped to the configured
// maximum so one request cannot drag the whole store across the wire.
func (s *QueryService) Records(ctx context.Context, day string, page, pageSize int) (*RecordsPage, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	if day != "" {
		if _, err := time.Parse(model.DayLayout, day); err != nil {
			return nil, ErrInvalidDay
		}
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	records, total, err := s.store.Query(ctx, port.Query{Day: day, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.Position{}
	}

	days, err := s.store.Days(ctx)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &RecordsPage{
		Records:       records,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
		AvailableDays: days,
	}, nil
}

// Stats reports counts and approximate coverage from the store's current
// state; nothing is cached.
func (s *QueryService) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	perDay, err := s.store.CountByDay(ctx)
	if err != nil {
		return nil, err
	}
	if perDay == nil {
		perDay = map[string]int64{}
	}

	hours := float64(total) * s.fetchInterval.Seconds() / 3600
	return &Stats{
		TotalRecords:         total,
		TotalHours:           math.Round(hours*10) / 10,
		TotalDays:            len(perDay),
		RecordsPerDay:        perDay,
		FetchIntervalSeconds: int(s.fetchInterval.Seconds()),
		RetentionDays:        s.retentionDays,
	}, nil
}
