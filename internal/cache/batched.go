package cache

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jward/topdown/internal/lookup"
)

// BatchedTracker buffers lookup events in memory and writes them in one
// transaction on Commit. Every event of one tracker shares a run ID.
//
// Thread safety: the mutex protects the buffer; Record may be called from
// any goroutine.
type BatchedTracker struct {
	store *Store
	runID string

	mu      sync.Mutex
	Lookups []lookup.Lookup
}

// Compile-time check: *BatchedTracker satisfies lookup.Tracker.
var _ lookup.Tracker = (*BatchedTracker)(nil)

// NewBatchedTracker creates a tracker committing to s under a fresh run ID.
func NewBatchedTracker(s *Store) *BatchedTracker {
	return &BatchedTracker{store: s, runID: uuid.NewString()}
}

// RunID identifies this tracker's events in the lookups table.
func (b *BatchedTracker) RunID() string { return b.runID }

func (b *BatchedTracker) Record(l lookup.Lookup) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Lookups = append(b.Lookups, l)
}

// Len returns the number of buffered events.
func (b *BatchedTracker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Lookups)
}

// Commit writes the buffered events and clears the buffer.
func (b *BatchedTracker) Commit() error {
	b.mu.Lock()
	pending := b.Lookups
	b.Lookups = nil
	b.mu.Unlock()

	if err := b.store.CommitLookups(b.runID, pending); err != nil {
		b.mu.Lock()
		b.Lookups = append(pending, b.Lookups...)
		b.mu.Unlock()
		return err
	}
	return nil
}

// CommitLookups inserts events under runID within a single transaction and
// records runID as the latest run.
func (s *Store) CommitLookups(runID string, lookups []lookup.Lookup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit lookups: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO lookups (run_id, file, line, col, scope, scope_kind, name, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("commit lookups: prepare: %w", err)
	}
	defer stmt.Close()

	for _, l := range lookups {
		if _, err := stmt.Exec(runID, l.File, l.Line, l.Col, l.Scope, string(l.ScopeKind), l.Name, l.Result.String()); err != nil {
			return fmt.Errorf("commit lookups: %q: %w", l.Name, err)
		}
	}
	if _, err := tx.Exec("INSERT INTO metadata (key, value) VALUES ('last_run', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", runID); err != nil {
		return fmt.Errorf("commit lookups: last run: %w", err)
	}
	return tx.Commit()
}

// LastRun returns the ID of the most recently committed run, or "".
func (s *Store) LastRun() (string, error) {
	return s.Metadata("last_run")
}

// RunLookups returns the events of one run in insertion order.
func (s *Store) RunLookups(runID string) ([]lookup.Lookup, error) {
	rows, err := s.db.Query(`SELECT COALESCE(file, ''), COALESCE(line, 0), COALESCE(col, 0),
		COALESCE(scope, ''), COALESCE(scope_kind, ''), name, result
		FROM lookups WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query lookups: %w", err)
	}
	defer rows.Close()
	var out []lookup.Lookup
	for rows.Next() {
		var (
			l         lookup.Lookup
			scopeKind string
			result    string
		)
		if err := rows.Scan(&l.File, &l.Line, &l.Col, &l.Scope, &scopeKind, &l.Name, &result); err != nil {
			return nil, fmt.Errorf("scan lookup: %w", err)
		}
		l.ScopeKind = lookup.ScopeKind(scopeKind)
		l.Result = parseResult(result)
		out = append(out, l)
	}
	return out, rows.Err()
}

// DependentFiles returns the files of runID that looked up any of names,
// sorted and without duplicates. These are the files to re-analyse when
// declarations with those names change.
func (s *Store) DependentFiles(runID string, names ...string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := append([]any{runID}, stringsToArgs(names)...)
	rows, err := s.db.Query(`SELECT DISTINCT file FROM lookups
		WHERE run_id = ? AND file IS NOT NULL AND file != '' AND name IN (`+placeholderList(len(names))+`)
		ORDER BY file`, args...)
	if err != nil {
		return nil, fmt.Errorf("query dependents: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func parseResult(s string) lookup.Result {
	switch s {
	case "unresolved":
		return lookup.Unresolved
	case "computed":
		return lookup.Computed
	}
	return lookup.Resolved
}
