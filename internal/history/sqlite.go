package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	provider TEXT,
	outcome TEXT NOT NULL,
	started_at TEXT NOT NULL,
	total_ms INTEGER NOT NULL,
	timings_json TEXT,
	input TEXT,
	output TEXT,
	error TEXT,
	error_code TEXT
);
CREATE INDEX IF NOT EXISTS records_started_at ON records(started_at);`

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	var timings sql.NullString
	if len(rec.TimingsMS) > 0 {
		data, err := json.Marshal(rec.TimingsMS)
		if err != nil {
			return fmt.Errorf("encode timings: %w", err)
		}
		timings = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO records
		(id, session_id, mode, provider, outcome, started_at, total_ms, timings_json, input, output, error, error_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.SessionID,
		rec.Mode,
		rec.Provider,
		string(rec.Outcome),
		rec.StartedAt.UTC().Format(timeLayout),
		rec.TotalMS,
		timings,
		nullable(rec.Input),
		nullable(rec.Output),
		nullable(rec.Error),
		rec.ErrorCode,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, session_id, mode, provider, outcome, started_at, total_ms, timings_json, input, output, error, error_code
		FROM records ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			outcome   string
			startedAt string
			provider  sql.NullString
			timings   sql.NullString
			input     sql.NullString
			output    sql.NullString
			errText   sql.NullString
			errCode   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Mode, &provider, &outcome, &startedAt,
			&rec.TotalMS, &timings, &input, &output, &errText, &errCode); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Outcome = Outcome(outcome)
		rec.Provider = provider.String
		rec.ErrorCode = errCode.String
		if t, err := time.Parse(timeLayout, startedAt); err == nil {
			rec.StartedAt = t
		}
		if timings.Valid {
			_ = json.Unmarshal([]byte(timings.String), &rec.TimingsMS)
		}
		rec.Input = fromNullable(input)
		rec.Output = fromNullable(output)
		rec.Error = fromNullable(errText)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func fromNullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
