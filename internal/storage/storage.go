package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for calibration runs.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calibration_runs (
            id TEXT PRIMARY KEY,
            status TEXT NOT NULL,
            reference TEXT,
            frame_count INTEGER,
            matched_sources INTEGER,
            radius REAL,
            residual_rms REAL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS frame_zeropoints (
            run_id TEXT NOT NULL,
            frame_index INTEGER NOT NULL,
            catalog TEXT,
            zero_point REAL,
            matched INTEGER,
            PRIMARY KEY (run_id, frame_index)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_frame_zeropoints_run ON frame_zeropoints(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunRecord captures persisted run info.
type RunRecord struct {
	ID             string
	Status         string
	Reference      string
	FrameCount     int
	MatchedSources int
	Radius         float64
	ResidualRMS    float64
	Error          string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// FrameZeroPoint is one frame's persisted calibration outcome.
type FrameZeroPoint struct {
	RunID      string
	FrameIndex int
	Catalog    string
	ZeroPoint  float64
	Matched    int
}

// RecordRunStart inserts a running calibration run.
func (s *Store) RecordRunStart(rec RunRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO calibration_runs (id, status, reference, frame_count, radius) VALUES (?, ?, ?, ?, ?);`,
		rec.ID, "running", rec.Reference, rec.FrameCount, rec.Radius)
	return err
}

// RecordRunResult finalizes a run and stores its per-frame zero-points.
func (s *Store) RecordRunResult(id, status string, matchedSources int, residualRMS float64, errMsg string, zps []FrameZeroPoint) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE calibration_runs SET status=?, matched_sources=?, residual_rms=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`,
		status, matchedSources, residualRMS, errMsg, id)
	if err != nil {
		return err
	}
	for _, zp := range zps {
		_, err = s.DB.Exec(`INSERT OR REPLACE INTO frame_zeropoints (run_id, frame_index, catalog, zero_point, matched) VALUES (?, ?, ?, ?, ?);`,
			id, zp.FrameIndex, zp.Catalog, zp.ZeroPoint, zp.Matched)
		if err != nil {
			return err
		}
	}
	return nil
}

// RecentRuns returns the latest runs up to limit.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, status, reference, frame_count, matched_sources, radius, residual_rms, created_at, completed_at, error_message FROM calibration_runs ORDER BY created_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var created time.Time
		var completed sql.NullTime
		var matched sql.NullInt64
		var rms sql.NullFloat64
		var errorMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.Reference, &rec.FrameCount, &matched, &rec.Radius, &rms, &created, &completed, &errorMsg); err != nil {
			return nil, err
		}
		rec.CreatedAt = created
		if matched.Valid {
			rec.MatchedSources = int(matched.Int64)
		}
		if rms.Valid {
			rec.ResidualRMS = rms.Float64
		}
		if completed.Valid {
			rec.CompletedAt = &completed.Time
		}
		if errorMsg.Valid {
			rec.Error = errorMsg.String
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RunZeroPoints fetches a run's per-frame zero-points, in frame order.
func (s *Store) RunZeroPoints(id string) ([]FrameZeroPoint, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT run_id, frame_index, catalog, zero_point, matched FROM frame_zeropoints WHERE run_id=? ORDER BY frame_index;`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zps []FrameZeroPoint
	for rows.Next() {
		var zp FrameZeroPoint
		if err := rows.Scan(&zp.RunID, &zp.FrameIndex, &zp.Catalog, &zp.ZeroPoint, &zp.Matched); err != nil {
			return nil, err
		}
		zps = append(zps, zp)
	}
	return zps, rows.Err()
}
