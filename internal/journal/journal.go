// Package journal stores chord resolution attempts in SQLite.
//
// Each run of the engine opens a session identified by a UUID. Every
// sampling edge, hit or miss, becomes one row in the resolutions table.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chorder/internal/chord"
	"chorder/internal/engine"
)

// ErrSessionEnded is returned when recording into an ended session.
var ErrSessionEnded = errors.New("journal: session ended")

// Store is the SQLite resolution journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer keeps the engine's inserts in order.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Begin starts a session. source names the event source ("evdev",
// "terminal", a script path).
func (s *Store) Begin(source string) (*Session, error) {
	sess := &Session{
		store:   s,
		ID:      uuid.New(),
		Source:  source,
		Started: time.Now(),
	}
	_, err := s.db.Exec(
		"INSERT INTO sessions (id, source, started_ns) VALUES (?, ?, ?)",
		sess.ID.String(), source, sess.Started.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Session records resolutions for one engine run. It implements
// engine.Recorder.
type Session struct {
	store   *Store
	ended   bool
	ID      uuid.UUID
	Source  string
	Started time.Time
}

// Record inserts r.
func (s *Session) Record(r engine.Resolution) error {
	if s.ended {
		return ErrSessionEnded
	}
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	var token, next sql.NullString
	if !r.Miss {
		token = sql.NullString{String: string(r.Token), Valid: true}
		next = sql.NullString{String: string(r.Next), Valid: true}
	}
	_, err := s.store.db.Exec(`
		INSERT INTO resolutions (session_id, timestamp_ns, mode, combo, token, next_mode, miss, held_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), at.UnixNano(), string(r.Mode), int64(r.Combo), token, next, r.Miss, int64(r.Held),
	)
	if err != nil {
		return fmt.Errorf("insert resolution: %w", err)
	}
	return nil
}

// End marks the session finished. Further Record calls fail.
func (s *Session) End() error {
	if s.ended {
		return nil
	}
	s.ended = true
	_, err := s.store.db.Exec("UPDATE sessions SET ended_ns = ? WHERE id = ?", time.Now().UnixNano(), s.ID.String())
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Entry is one journaled resolution.
type Entry struct {
	ID        int64
	SessionID uuid.UUID
	At        time.Time
	Mode      chord.Mode
	Combo     chord.Combo
	Token     chord.Token
	Next      chord.Mode
	Miss      bool
	Held      time.Duration
}

// Outcome returns the engine outcome the entry recorded.
func (e Entry) Outcome() engine.Outcome {
	if e.Miss {
		return engine.Outcome{Miss: true}
	}
	return engine.Outcome{Token: e.Token}
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, timestamp_ns, mode, combo, token, next_mode, miss, held_ns
		FROM resolutions ORDER BY timestamp_ns DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e               Entry
			sessionID       string
			ts, combo, held int64
			token, next     sql.NullString
			mode            string
		)
		if err := rows.Scan(&e.ID, &sessionID, &ts, &mode, &combo, &token, &next, &e.Miss, &held); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		e.SessionID, err = uuid.Parse(sessionID)
		if err != nil {
			return nil, fmt.Errorf("session id %q: %w", sessionID, err)
		}
		e.At = time.Unix(0, ts)
		e.Mode = chord.Mode(mode)
		e.Combo = chord.Combo(combo)
		e.Token = chord.Token(token.String)
		e.Next = chord.Mode(next.String)
		e.Held = time.Duration(held)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TokenCount is the number of times a token was resolved.
type TokenCount struct {
	Token chord.Token
	Count int
}

// Stats summarizes the journal.
type Stats struct {
	Sessions  int
	Attempts  int
	Hits      int
	Misses    int
	MeanHeld  time.Duration
	PerToken  []TokenCount // most frequent first
	FirstSeen time.Time
	LastSeen  time.Time
}

// MissRatio is Misses over Attempts, 0 for an empty journal.
func (st Stats) MissRatio() float64 {
	if st.Attempts == 0 {
		return 0
	}
	return float64(st.Misses) / float64(st.Attempts)
}

// Stats computes statistics over every session, or over one session when
// session is not uuid.Nil.
func (s *Store) Stats(session uuid.UUID) (*Stats, error) {
	where, args := "", []any{}
	if session != uuid.Nil {
		where, args = " WHERE session_id = ?", []any{session.String()}
	}

	st := &Stats{}
	var first, last sql.NullInt64
	var meanHeld sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(miss), 0), COUNT(DISTINCT session_id),
		       MIN(timestamp_ns), MAX(timestamp_ns), AVG(held_ns)
		FROM resolutions`+where, args...,
	).Scan(&st.Attempts, &st.Misses, &st.Sessions, &first, &last, &meanHeld)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	st.Hits = st.Attempts - st.Misses
	if first.Valid {
		st.FirstSeen = time.Unix(0, first.Int64)
		st.LastSeen = time.Unix(0, last.Int64)
	}
	if meanHeld.Valid {
		st.MeanHeld = time.Duration(meanHeld.Float64)
	}

	tokenWhere := " WHERE miss = 0"
	if where != "" {
		tokenWhere += " AND session_id = ?"
	}
	rows, err := s.db.Query("SELECT token, COUNT(*) FROM resolutions"+tokenWhere+" GROUP BY token", args...)
	if err != nil {
		return nil, fmt.Errorf("query token counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tc TokenCount
		var token string
		if err := rows.Scan(&token, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan token count: %w", err)
		}
		tc.Token = chord.Token(token)
		st.PerToken = append(st.PerToken, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(st.PerToken, func(i, j int) bool {
		if st.PerToken[i].Count != st.PerToken[j].Count {
			return st.PerToken[i].Count > st.PerToken[j].Count
		}
		return st.PerToken[i].Token < st.PerToken[j].Token
	})
	return st, nil
}

// SessionInfo describes a journaled session.
type SessionInfo struct {
	ID       uuid.UUID
	Source   string
	Started  time.Time
	Ended    time.Time // zero while running or after a crash
	Attempts int
}

// Sessions lists sessions, newest first.
func (s *Store) Sessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.source, s.started_ns, s.ended_ns, COUNT(r.id)
		FROM sessions s LEFT JOIN resolutions r ON r.session_id = s.id
		GROUP BY s.id ORDER BY s.started_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			info    SessionInfo
			id      string
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&id, &info.Source, &started, &ended, &info.Attempts); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if info.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session id %q: %w", id, err)
		}
		info.Started = time.Unix(0, started)
		if ended.Valid {
			info.Ended = time.Unix(0, ended.Int64)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
