package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// streamBatch bounds how many rows a single Stream round trip loads, so
// exports never hold the store's sole connection for long.
const streamBatch = 500

type Store struct {
	db *sql.DB
}

var _ port.Store = (*Store)(nil)

func New(path string) (*Store, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  latitude REAL NOT NULL,
  longitude REAL NOT NULL,
  altitude REAL,
  timestamp TEXT NOT NULL,
  day TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_timestamp ON positions(timestamp);
CREATE INDEX IF NOT EXISTS idx_positions_day ON positions(day);
`)
	return err
}

func (s *Store) Insert(ctx context.Context, p model.Position) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions(latitude, longitude, altitude, timestamp, day, created_at)
		VALUES(?, ?, ?, ?, ?, ?)
	`, p.Latitude, p.Longitude, p.Altitude, p.Timestamp.String(), p.Day, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions`).Scan(&n)
	return n, err
}

func (s *Store) EvictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE timestamp < ?`,
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
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE day = ?`, q.Day).Scan(&total); err != nil {
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
			FROM positions WHERE day = ?
			ORDER BY timestamp ASC, id ASC LIMIT ? OFFSET ?
		`, q.Day, q.PageSize, q.Offset())
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, latitude, longitude, altitude, timestamp, day
			FROM positions
			ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?
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

func (s *Store) Stream(ctx context.Context, day string, fn func(model.Position) error) error {
	lastTS, lastID := "", int64(0)
	for {
		batch, err := s.streamBatch(ctx, day, lastTS, lastID)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		// rows are fully read and the connection released before fn runs,
		// so a slow consumer cannot starve the single-connection writer
		for _, p := range batch {
			if err := fn(p); err != nil {
				return err
			}
		}
		last := batch[len(batch)-1]
		lastTS, lastID = last.Timestamp.String(), last.ID
		if len(batch) < streamBatch {
			return nil
		}
	}
}

// streamBatch fetches the next keyset page ordered by (timestamp, id).
func (s *Store) streamBatch(ctx context.Context, day, afterTS string, afterID int64) ([]model.Position, error) {
	var rows *sql.Rows
	var err error
	if day != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, latitude, longitude, altitude, timestamp, day
			FROM positions
			WHERE day = ? AND (timestamp > ? OR (timestamp = ? AND id > ?))
			ORDER BY timestamp ASC, id ASC LIMIT ?
		`, day, afterTS, afterTS, afterID, streamBatch)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, latitude, longitude, altitude, timestamp, day
			FROM positions
			WHERE timestamp > ? OR (timestamp = ? AND id > ?)
			ORDER BY timestamp ASC, id ASC LIMIT ?
		`, afterTS, afterTS, afterID, streamBatch)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
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
