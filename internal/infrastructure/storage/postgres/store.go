package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

type Store struct {
	db *sql.DB
}

var _ port.Store = (*Store)(nil)

func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  id BIGSERIAL PRIMARY KEY,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  altitude DOUBLE PRECISION,
  timestamp TEXT NOT NULL,
  day TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_timestamp ON positions(timestamp);
CREATE INDEX IF NOT EXISTS idx_positions_day ON positions(day);
`)
	return err
}

func (s *Store) Insert(ctx context.Context, p model.Position) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO positions(latitude, longitude, altitude, timestamp, day, created_at)
		VALUES($1, $2, $3, $4, $5, $6) RETURNING id
	`, p.Latitude, p.Longitude, p.Altitude, p.Timestamp.String(), p.Day, time.Now().Unix()).Scan(&id)
	return id, err
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions`).Scan(&n)
	return n, err
}

func (s *Store) EvictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE timestamp < $1`,
		model.NewUTCTime(cutoff).String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Days(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT day FROM positions ORDER BY day DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

func (s *Store) CountByDay(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT day, COUNT(*) FROM positions GROUP BY day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

func (s *Store) Latest(ctx context.Context) (model.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, latitude, longitude, altitude, timestamp, day
		FROM positions ORDER BY id DESC LIMIT 1
	`)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Position{}, port.ErrNoData
	}
	return p, err
}

func (s *Store) Query(ctx context.Context, q port.Query) ([]model.Position, int64, error) {
	var total int64
	if q.Day != "" {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE day = $1`, q.Day).Scan(&total); err != nil {
			return nil, 0, err
		}
	} else {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions`).Scan(&total); err != nil {
			return nil, 0, err
		}
	}

	var rows *sql.Rows
	var err error
	if q.Day != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, latitude, longitude, altitude, timestamp, day
			FROM positions WHERE day = $1
			ORDER BY timestamp ASC, id ASC LIMIT $2 OFFSET $3
		`, q.Day, q.PageSize, q.Offset())
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, latitude, longitude, altitude, timestamp, day
			FROM positions
			ORDER BY timestamp DESC, id DESC LIMIT $1 OFFSET $2
		`, q.PageSize, q.Offset())
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records, err := collectPositions(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Stream walks rows in a single query; the pool keeps enough spare
// connections that holding one for the duration of an export is fine.
func (s *Store) Stream(ctx context.Context, day string, fn func(model.Position) error) error {
	var rows *sql.Rows
	var err error
	if day != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, latitude, longitude, altitude, timestamp, day
			FROM positions WHERE day = $1
			ORDER BY timestamp ASC, id ASC
		`, day)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, latitude, longitude, altitude, timestamp, day
			FROM positions
			ORDER BY timestamp ASC, id ASC
		`)
	}
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (model.Position, error) {
	var p model.Position
	var alt sql.NullFloat64
	var ts string
	if err := row.Scan(&p.ID, &p.Latitude, &p.Longitude, &alt, &ts, &p.Day); err != nil {
		return model.Position{}, err
	}
	parsed, err := model.ParseUTCTime(ts)
	if err != nil {
		return model.Position{}, fmt.Errorf("corrupt timestamp %q: %w", ts, err)
	}
	p.Timestamp = parsed
	if alt.Valid {
		p.Altitude = &alt.Float64
	}
	return p, nil
}

func collectPositions(rows *sql.Rows) ([]model.Position, error) {
	var records []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, rows.Err()
}
