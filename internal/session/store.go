// Package session persists agent conversation state and the catalogue
// of sessions in SQLite. Either the mattn (cgo) or modernc (pure Go)
// driver can back the store.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/agent"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
)

// ErrNotFound is returned when a session or run does not exist.
var ErrNotFound = errors.New("not found")

// DefaultTitle names a session with no usable first message.
const DefaultTitle = "New Conversation"

// DefaultMaxSessions is the Prune limit when none is configured.
const DefaultMaxSessions = 100

// Conversation is the catalogue entry for a session.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Store is a SQLite-backed session store. It implements agent.Memory
// and agent.RunRecorder. All methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time
}

// Open opens the database at path with driver ("sqlite3" or "sqlite")
// and returns a migrated store. path may be ":memory:".
func Open(driver, path string, bus *events.Bus, logger *slog.Logger) (*Store, error) {
	dsn, err := dsnFor(driver, path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s, err := NewStore(db, bus, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dsnFor(driver, path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	switch driver {
	case "sqlite3":
		return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", nil
	case "sqlite":
		return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	default:
		return "", fmt.Errorf("unknown sqlite driver %q", driver)
	}
}

// NewStore wraps an open database and creates the schema. bus and
// logger may be nil.
func NewStore(db *sql.DB, bus *events.Bus, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, bus: bus, logger: logger.With("component", "session"), now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate session schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

	-- Checkpointed agent state, one JSON blob per session.
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		task           TEXT NOT NULL,
		status         TEXT NOT NULL,
		exhaust_reason TEXT,
		error_kind     TEXT,
		iterations     INTEGER NOT NULL,
		tools_called   INTEGER NOT NULL,
		started_at     TEXT NOT NULL,
		duration_ms    INTEGER NOT NULL,
		final_answer   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

// Load returns the stored state for id, or nil and no error when the
// session has no state.
func (s *Store) Load(ctx context.Context, id string) (*agent.State, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var st agent.State
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return nil, fmt.Errorf("decode state for %s: %w", id, err)
	}
	return &st, nil
}

// Save writes the state blob and the catalogue row in one transaction.
// The title is derived from the first user message the first time the
// session has one.
func (s *Store) Save(ctx context.Context, id string, st *agent.State) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	now := formatTime(s.now())
	title := ""
	if first := firstUserMessage(st.Messages); first != "" {
		title = GenerateTitle(first)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, id, string(blob), now); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at, message_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN conversations.title = '' THEN excluded.title ELSE conversations.title END,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count
	`, id, title, now, now, len(st.Messages)); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Reset clears the session's state. The catalogue row is kept with its
// title and message count reset.
func (s *Store) Reset(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET title = '', message_count = 0, updated_at = ? WHERE id = ?
	`, formatTime(s.now()), id); err != nil {
		return fmt.Errorf("reset conversation: %w", err)
	}
	return tx.Commit()
}

// Get returns the catalogue entry for id.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at, message_count
		FROM conversations WHERE id = ?
	`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// List returns up to limit sessions, most recently updated first.
func (s *Store) List(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at, message_count
		FROM conversations ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(sc scanner) (*Conversation, error) {
	var c Conversation
	var created, updated string
	if err := sc.Scan(&c.ID, &c.Title, &created, &updated, &c.MessageCount); err != nil {
		return nil, err
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// Delete removes a session, its state and its run records.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.bus.Emit(events.SourceSession, events.KindSessionDeleted, map[string]any{"session_id": id})
	s.logger.Info("session deleted", "session", id)
	return nil
}

// CleanupOrphans removes state rows that have no catalogue entry and
// returns how many were removed.
func (s *Store) CleanupOrphans(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id NOT IN (SELECT id FROM conversations)
	`)
	if err != nil {
		return 0, fmt.Errorf("cleanup orphans: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("removed orphaned session state", "count", n)
	}
	return int(n), nil
}

// Prune keeps the max most recently updated sessions and removes the
// rest. It returns how many sessions were removed.
func (s *Store) Prune(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		max = DefaultMaxSessions
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	keep := `SELECT id FROM conversations ORDER BY updated_at DESC LIMIT ?`
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id NOT IN (`+keep+`)`, max)
	if err != nil {
		return 0, fmt.Errorf("prune conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id NOT IN (SELECT id FROM conversations)`); err != nil {
			return 0, fmt.Errorf("prune state: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE session_id NOT IN (SELECT id FROM conversations)`); err != nil {
			return 0, fmt.Errorf("prune runs: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	if n > 0 {
		s.bus.Emit(events.SourceSession, events.KindSessionPruned, map[string]any{"removed": n, "kept": max})
		s.logger.Info("pruned sessions", "removed", n, "kept", max)
	}
	return int(n), nil
}

// RecordRun stores a finished run.
func (s *Store) RecordRun(ctx context.Context, rec agent.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, task, status, exhaust_reason, error_kind,
			iterations, tools_called, started_at, duration_ms, final_answer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			exhaust_reason = excluded.exhaust_reason,
			error_kind = excluded.error_kind,
			iterations = excluded.iterations,
			tools_called = excluded.tools_called,
			duration_ms = excluded.duration_ms,
			final_answer = excluded.final_answer
	`, rec.ID, rec.SessionID, rec.Task, string(rec.Status), rec.ExhaustReason, string(rec.ErrorKind),
		rec.Iterations, rec.ToolsCalled, formatTime(rec.StartedAt), rec.Duration.Milliseconds(), rec.FinalAnswer)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

const runColumns = `id, session_id, task, status, exhaust_reason, error_kind,
	iterations, tools_called, started_at, duration_ms, final_answer`

// ListRuns returns up to limit runs of a session, newest first.
func (s *Store) ListRuns(ctx context.Context, sessionID string, limit int) ([]agent.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs WHERE session_id = ?
		ORDER BY started_at DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []agent.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*agent.RunRecord, error) {
	rec, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

func scanRun(sc scanner) (*agent.RunRecord, error) {
	var rec agent.RunRecord
	var status, started string
	var exhaust, errKind, answer sql.NullString
	var durMS int64
	if err := sc.Scan(&rec.ID, &rec.SessionID, &rec.Task, &status, &exhaust, &errKind,
		&rec.Iterations, &rec.ToolsCalled, &started, &durMS, &answer); err != nil {
		return nil, err
	}
	rec.Status = agent.Phase(status)
	rec.ExhaustReason = exhaust.String
	rec.ErrorKind = agent.ErrorKind(errKind.String)
	rec.FinalAnswer = answer.String
	rec.StartedAt = parseTime(started)
	rec.Duration = time.Duration(durMS) * time.Millisecond
	return &rec, nil
}

func firstUserMessage(msgs []llm.Message) string {
	for _, m := range msgs {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

// GenerateTitle derives a session title from its first message. Long
// messages are cut to 50 characters, at a word boundary when one falls
// past position 30, and marked with "...".
func GenerateTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if title == "" {
		return DefaultTitle
	}

	const maxLen, minCut = 50, 30
	if utf8.RuneCountInString(title) > maxLen {
		runes := []rune(title)[:maxLen]
		cut := string(runes)
		if i := strings.LastIndex(cut, " "); i >= 0 && utf8.RuneCountInString(cut[:i]) > minCut {
			cut = cut[:i]
		}
		title = cut + "..."
	}

	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:]
}
