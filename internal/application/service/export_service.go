package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// flushEvery pushes buffered CSV out to the writer periodically so large
// exports stream instead of accumulating.
const flushEvery = 500

var csvHeader = []string{"id", "latitude", "longitude", "altitude", "timestamp", "day"}

// ExportService streams stored positions as CSV, scoped to one day or to
// the whole retained window.
type ExportService struct {
	store         port.Store
	retentionDays int
}

func NewExportService(store port.Store, retentionDays int) *ExportService {
	if retentionDays <= 0 {
		retentionDays = 3
	}
	return &ExportService{store: store, retentionDays: retentionDays}
}

// Filename names the download after its scope.
func (s *ExportService) Filename(day string) string {
	if day != "" {
		return fmt.Sprintf("positions_%s.csv", day)
	}
	return fmt.Sprintf("positions_last%ddays.csv", s.retentionDays)
}

// WriteCSV writes a header row and one row per record in ascending
// timestamp order. Rows are produced record by record off the store's
// stream, never as one materialized slice.
func (s *ExportService) WriteCSV(ctx context.Context, day string, w io.Writer) error {
	if day != "" {
		if _, err := time.Parse(model.DayLayout, day); err != nil {
			return ErrInvalidDay
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	rows := 0
	err := s.store.Stream(ctx, day, func(p model.Position) error {
		if err := cw.Write(csvRow(p)); err != nil {
			return err
		}
		rows++
		if rows%flushEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(p model.Position) []string {
	altitude := ""
	if p.Altitude != nil {
		altitude = strconv.FormatFloat(*p.Altitude, 'f', -1, 64)
	}
	return []string{
		strconv.FormatInt(p.ID, 10),
		strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		strconv.FormatFloat(p.Longitude, 'f', -1, 64),
		altitude,
		p.Timestamp.String(),
		p.Day,
	}
}
