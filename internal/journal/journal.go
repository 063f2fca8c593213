// Package journal persists applied corrections to a local SQLite
// database.
//
// The journal is an audit trail, not a undo stack: the monitor owns
// in-session undo, while the journal answers "what did the daemon change
// and how confident was it" across sessions. The driver is pure Go
// (modernc.org/sqlite), so the daemon builds without cgo.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Schema for the correction journal.
const schema = `
CREATE TABLE IF NOT EXISTS corrections (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    applied_at      TEXT NOT NULL,
    source          TEXT NOT NULL,
    region_start    INTEGER NOT NULL,
    region_end      INTEGER NOT NULL,
    original_span   TEXT NOT NULL,
    corrected_span  TEXT NOT NULL,
    confidence      REAL NOT NULL,
    stages          TEXT NOT NULL,
    duration_ms     INTEGER NOT NULL,
    doc_chars       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_corrections_applied_at ON corrections(applied_at);
CREATE INDEX IF NOT EXISTS idx_corrections_source ON corrections(source);
`

// Entry is one applied correction.
type Entry struct {
	// ID is assigned by the database on insert.
	ID int64

	// AppliedAt is when the correction was swapped into the buffer.
	AppliedAt time.Time

	// Source records what triggered the wave: "sweep", "forced" or
	// "oneshot".
	Source string

	// RegionStart and RegionEnd are the active region bounds in the
	// snapshot the wave ran against.
	RegionStart int
	RegionEnd   int

	// OriginalSpan and CorrectedSpan are the region text before and
	// after the wave.
	OriginalSpan  string
	CorrectedSpan string

	// Confidence is the wave's final confidence score.
	Confidence float64

	// Stages lists the correction passes that contributed, e.g.
	// ["noise", "context"].
	Stages []string

	// Duration is the wave's end-to-end latency.
	Duration time.Duration

	// DocChars is the document length in grapheme clusters at swap
	// time, for sizing trends.
	DocChars int
}

// Stats summarises the journal contents.
type Stats struct {
	// Corrections is the total number of recorded entries.
	Corrections int64

	// AvgConfidence is the mean confidence across all entries, 0 when
	// the journal is empty.
	AvgConfidence float64

	// AvgDuration is the mean wave latency, 0 when the journal is
	// empty.
	AvgDuration time.Duration

	// BySource counts entries per trigger source.
	BySource map[string]int64
}

// Journal wraps SQLite access for the correction audit log.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path and applies the
// schema. The parent directory is created if missing.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	// WAL keeps readers (Recent, Stats) from blocking the recorder.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Ping verifies the database is reachable. Health checks use it.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Record inserts one applied correction. A zero AppliedAt is stamped
// with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if e.AppliedAt.IsZero() {
		e.AppliedAt = time.Now()
	}

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO corrections (applied_at, source, region_start, region_end, original_span, corrected_span, confidence, stages, duration_ms, doc_chars)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AppliedAt.UTC().Format(time.RFC3339Nano),
		e.Source,
		e.RegionStart,
		e.RegionEnd,
		e.OriginalSpan,
		e.CorrectedSpan,
		e.Confidence,
		strings.Join(e.Stages, ","),
		e.Duration.Milliseconds(),
		e.DocChars,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: record id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, applied_at, source, region_start, region_end, original_span, corrected_span, confidence, stages, duration_ms, doc_chars
		 FROM corrections
		 ORDER BY id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			appliedAt  string
			stages     string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &appliedAt, &e.Source, &e.RegionStart, &e.RegionEnd, &e.OriginalSpan, &e.CorrectedSpan, &e.Confidence, &stages, &durationMS, &e.DocChars); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt)
		if err != nil {
			return nil, fmt.Errorf("journal: parse applied_at: %w", err)
		}
		if stages != "" {
			e.Stages = strings.Split(stages, ",")
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: recent rows: %w", err)
	}
	return entries, nil
}

// Stats aggregates the journal. An empty journal yields zero values.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	s := Stats{BySource: make(map[string]int64)}

	row := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0), COALESCE(AVG(duration_ms), 0) FROM corrections`)
	var avgMS float64
	if err := row.Scan(&s.Corrections, &s.AvgConfidence, &avgMS); err != nil {
		return Stats{}, fmt.Errorf("journal: stats: %w", err)
	}
	s.AvgDuration = time.Duration(avgMS * float64(time.Millisecond))

	rows, err := j.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM corrections GROUP BY source`)
	if err != nil {
		return Stats{}, fmt.Errorf("journal: stats by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source string
			n      int64
		)
		if err := rows.Scan(&source, &n); err != nil {
			return Stats{}, fmt.Errorf("journal: stats scan: %w", err)
		}
		s.BySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("journal: stats rows: %w", err)
	}
	return s, nil
}

// Prune deletes all but the newest keep entries and reports how many
// rows were removed. The journal lives on end-user disks; unbounded
// growth is not acceptable there.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM corrections
		 WHERE id NOT IN (SELECT id FROM corrections ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: prune count: %w", err)
	}
	return n, nil
}
