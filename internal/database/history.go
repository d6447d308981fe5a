package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/doccrawl/internal/model"
)

// FileName is the name of the history database inside its directory.
const FileName = "doccrawl.db"

// ErrNotFound is returned when a database file or session does not exist.
var ErrNotFound = errors.New("not found")

// HistoryDB stores crawl sessions and their pages.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the options used by the crawl command.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("history database %s: %w", dbPath, ErrNotFound)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; workers record pages through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	h := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := h.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_url TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		state TEXT NOT NULL,
		max_pages INTEGER NOT NULL,
		max_depth INTEGER NOT NULL,
		pages_fetched INTEGER DEFAULT 0,
		saved INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		sink_failures INTEGER DEFAULT 0,
		discarded INTEGER DEFAULT 0,
		abort_reason TEXT DEFAULT '',
		errors TEXT DEFAULT '{}',
		started_at TEXT NOT NULL,
		finished_at TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		discovered_from TEXT DEFAULT '',
		status TEXT NOT NULL,
		status_code INTEGER DEFAULT 0,
		error_class TEXT DEFAULT '',
		error TEXT DEFAULT '',
		title TEXT DEFAULT '',
		file TEXT DEFAULT '',
		content_hash TEXT DEFAULT '',
		links INTEGER DEFAULT 0,
		attempts INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		UNIQUE(session_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_session ON pages(session_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SessionRecord is a stored crawl session.
type SessionRecord struct {
	ID           string
	StartURL     string
	OutputDir    string
	State        model.State
	MaxPages     int
	MaxDepth     int
	PagesFetched int
	Saved        int
	Failed       int
	SinkFailures int
	Discarded    int
	AbortReason  string
	Errors       map[model.ErrorClass]int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// FailedOrSkipped mirrors model.Summary.FailedOrSkipped.
func (r SessionRecord) FailedOrSkipped() int {
	return r.Failed + r.SinkFailures + r.Discarded
}

// PageRecord is a stored page outcome.
type PageRecord struct {
	ID             int64
	SessionID      string
	URL            string
	Depth          int
	DiscoveredFrom string
	Status         model.PageStatus
	StatusCode     int
	Class          model.ErrorClass
	Error          string
	Title          string
	File           string
	Hash           string
	Links          int
	Attempts       int
	Duration       time.Duration
}

// Session records the pages of one running crawl. It implements the
// coordinator's Recorder.
type Session struct {
	db *HistoryDB
	id string
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// StartSession inserts a RUNNING session row.
func (h *HistoryDB) StartSession(ctx context.Context, startURL, outputDir string, maxPages, maxDepth int) (*Session, error) {
	id, err := newSessionID(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	query := `
	INSERT INTO sessions (id, start_url, output_dir, state, max_pages, max_depth, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = h.db.ExecContext(ctx, query,
		id,
		startURL,
		outputDir,
		model.StateRunning.String(),
		maxPages,
		maxDepth,
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return &Session{db: h, id: id}, nil
}

// RecordPage stores one page outcome. A second outcome for the same URL
// replaces the first.
func (s *Session) RecordPage(ctx context.Context, o model.PageOutcome) error {
	query := `
	INSERT INTO pages (session_id, url, depth, discovered_from, status, status_code,
		error_class, error, title, file, content_hash, links, attempts, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, url) DO UPDATE SET
		status = excluded.status,
		status_code = excluded.status_code,
		error_class = excluded.error_class,
		error = excluded.error,
		title = excluded.title,
		file = excluded.file,
		content_hash = excluded.content_hash,
		links = excluded.links,
		attempts = excluded.attempts,
		duration_ms = excluded.duration_ms
	`

	_, err := s.db.db.ExecContext(ctx, query,
		s.id,
		o.Target.URL,
		o.Target.Depth,
		o.Target.DiscoveredFrom,
		string(o.Status),
		o.StatusCode,
		string(o.Class),
		o.Error,
		o.Title,
		o.File,
		o.Hash,
		o.Links,
		o.Attempts,
		o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record page %s: %w", o.Target.URL, err)
	}
	return nil
}

// Finish stores the final counters and terminal state of the session.
func (s *Session) Finish(ctx context.Context, summary model.Summary) error {
	errorsJSON, err := json.Marshal(summary.Errors)
	if err != nil {
		return fmt.Errorf("failed to serialize error counts: %w", err)
	}

	finished := summary.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	query := `
	UPDATE sessions SET
		state = ?, pages_fetched = ?, saved = ?, failed = ?, sink_failures = ?,
		discarded = ?, abort_reason = ?, errors = ?, finished_at = ?
	WHERE id = ?
	`
	res, err := s.db.db.ExecContext(ctx, query,
		summary.State.String(),
		summary.PagesFetched,
		summary.Saved,
		summary.Failed,
		summary.SinkFailures,
		summary.Discarded,
		summary.AbortReason,
		string(errorsJSON),
		formatTimestamp(finished),
		s.id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", s.id, ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, start_url, output_dir, state, max_pages, max_depth, pages_fetched,
	saved, failed, sink_failures, discarded, abort_reason, errors, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var (
		r                   SessionRecord
		state, errorsJSON   string
		started, finishedAt string
	)
	err := row.Scan(
		&r.ID, &r.StartURL, &r.OutputDir, &state, &r.MaxPages, &r.MaxDepth,
		&r.PagesFetched, &r.Saved, &r.Failed, &r.SinkFailures, &r.Discarded,
		&r.AbortReason, &errorsJSON, &started, &finishedAt,
	)
	if err != nil {
		return r, err
	}

	if r.State, err = model.ParseState(state); err != nil {
		return r, fmt.Errorf("session %s: %w", r.ID, err)
	}
	r.Errors = make(map[model.ErrorClass]int)
	if errorsJSON != "" {
		if err := json.Unmarshal([]byte(errorsJSON), &r.Errors); err != nil {
			return r, fmt.Errorf("failed to parse error counts: %w", err)
		}
	}
	r.StartedAt = parseTimestamp(started)
	r.FinishedAt = parseTimestamp(finishedAt)
	return r, nil
}

// GetSession returns the session with the given id.
func (h *HistoryDB) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	r, err := scanSession(h.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &r, nil
}

// ListSessions returns up to limit sessions, newest first. A limit of zero
// or less returns all sessions.
func (h *HistoryDB) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, rowid DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SessionPages returns the pages of a session in the order they were
// recorded.
func (h *HistoryDB) SessionPages(ctx context.Context, sessionID string) ([]PageRecord, error) {
	query := `
	SELECT id, session_id, url, depth, discovered_from, status, status_code,
		error_class, error, title, file, content_hash, links, attempts, duration_ms
	FROM pages
	WHERE session_id = ?
	ORDER BY id
	`

	rows, err := h.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var results []PageRecord
	for rows.Next() {
		var (
			p             PageRecord
			status, class string
			durationMS    int64
		)
		err := rows.Scan(
			&p.ID, &p.SessionID, &p.URL, &p.Depth, &p.DiscoveredFrom, &status,
			&p.StatusCode, &class, &p.Error, &p.Title, &p.File, &p.Hash, &p.Links,
			&p.Attempts, &durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Status = model.PageStatus(status)
		p.Class = model.ErrorClass(class)
		p.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, p)
	}
	return results, rows.Err()
}

// newSessionID returns a sortable identifier such as 20261019T150405-1a2b3c4d.
func newSessionID(now time.Time) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return now.UTC().Format("20060102T150405") + "-" + hex.EncodeToString(b[:]), nil
}

// timestampLayout has a fixed width so stored values sort chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats lists the layouts found in the database, most specific
// first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time for an empty or unknown value.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
