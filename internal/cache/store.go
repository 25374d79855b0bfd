// Package cache persists incremental-compilation state in SQLite: the
// compiled parts of every target, their signature hashes, and the lookups
// recorded by each analysis run.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	tderrors "github.com/jward/topdown/internal/errors"
	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/symbols"
)

// Store is the SQLite data access layer for the incremental cache.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database at dbPath with WAL mode enabled.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS targets (
  id              INTEGER PRIMARY KEY,
  name            TEXT NOT NULL,
  type            TEXT NOT NULL DEFAULT '',
  saved_at        TIMESTAMP,
  UNIQUE(name, type)
);

CREATE TABLE IF NOT EXISTS parts (
  id              INTEGER PRIMARY KEY,
  target_id       INTEGER NOT NULL REFERENCES targets(id),
  package         TEXT NOT NULL,
  name            TEXT NOT NULL,
  source_file     TEXT,
  hash            TEXT NOT NULL,
  obsolete        BOOLEAN DEFAULT FALSE,
  UNIQUE(target_id, name)
);

CREATE TABLE IF NOT EXISTS part_stubs (
  id              INTEGER PRIMARY KEY,
  part_id         INTEGER NOT NULL REFERENCES parts(id),
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  signature_hash  TEXT NOT NULL,
  body            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lookups (
  id              INTEGER PRIMARY KEY,
  run_id          TEXT NOT NULL,
  file            TEXT,
  line            INTEGER,
  col             INTEGER,
  scope           TEXT,
  scope_kind      TEXT,
  name            TEXT NOT NULL,
  result          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_parts_target ON parts(target_id);
CREATE INDEX IF NOT EXISTS idx_parts_package ON parts(package);
CREATE INDEX IF NOT EXISTS idx_part_stubs_part ON part_stubs(part_id);
CREATE INDEX IF NOT EXISTS idx_lookups_run ON lookups(run_id);
CREATE INDEX IF NOT EXISTS idx_lookups_name ON lookups(name);
`

// SaveTarget replaces every part of target in a single transaction.
func (s *Store) SaveTarget(target incremental.TargetID, parts []*symbols.Part) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save target: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO targets (name, type, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(name, type) DO UPDATE SET saved_at = excluded.saved_at`,
		target.Name, target.Type, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save target %s: %w", target, err)
	}
	var targetID int64
	if err := tx.QueryRow("SELECT id FROM targets WHERE name = ? AND type = ?", target.Name, target.Type).Scan(&targetID); err != nil {
		return fmt.Errorf("save target %s: lookup id: %w", target, err)
	}

	if _, err := tx.Exec("DELETE FROM part_stubs WHERE part_id IN (SELECT id FROM parts WHERE target_id = ?)", targetID); err != nil {
		return fmt.Errorf("save target %s: delete stubs: %w", target, err)
	}
	if _, err := tx.Exec("DELETE FROM parts WHERE target_id = ?", targetID); err != nil {
		return fmt.Errorf("save target %s: delete parts: %w", target, err)
	}

	for _, p := range parts {
		res, err := tx.Exec("INSERT INTO parts (target_id, package, name, source_file, hash) VALUES (?, ?, ?, ?, ?)",
			targetID, p.Package, p.Name, p.SourceFile, PartHash(p))
		if err != nil {
			return fmt.Errorf("save target %s: part %q: %w", target, p.Name, err)
		}
		partID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("save target %s: part %q: %w", target, p.Name, err)
		}
		for i, stub := range p.Stubs {
			body, err := json.Marshal(stub)
			if err != nil {
				return fmt.Errorf("save target %s: stub %q: %w", target, stub.Name, err)
			}
			_, err = tx.Exec("INSERT INTO part_stubs (part_id, ordinal, name, kind, signature_hash, body) VALUES (?, ?, ?, ?, ?, ?)",
				partID, i, stub.Name, stub.Kind, SignatureHash(stub), string(body))
			if err != nil {
				return fmt.Errorf("save target %s: stub %q: %w", target, stub.Name, err)
			}
		}
	}
	return tx.Commit()
}

func (s *Store) targetID(target incremental.TargetID) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM targets WHERE name = ? AND type = ?", target.Name, target.Type).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, tderrors.AddContext(tderrors.New(tderrors.CodeNotFound, "target not cached"), tderrors.CtxTarget, target.String())
	}
	if err != nil {
		return 0, fmt.Errorf("target %s: %w", target, err)
	}
	return id, nil
}

// Targets lists cached targets sorted by name and type.
func (s *Store) Targets() ([]incremental.TargetID, error) {
	rows, err := s.db.Query("SELECT name, type FROM targets ORDER BY name, type")
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()
	var out []incremental.TargetID
	for rows.Next() {
		var t incremental.TargetID
		if err := rows.Scan(&t.Name, &t.Type); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PartInfo summarises a stored part without its stubs.
type PartInfo struct {
	Package    string `json:"package"`
	Name       string `json:"name"`
	SourceFile string `json:"source_file,omitempty"`
	Hash       string `json:"hash"`
	Obsolete   bool   `json:"obsolete,omitempty"`
	Stubs      int    `json:"stubs"`
}

// PartInfos lists the parts of target ordered by name.
func (s *Store) PartInfos(target incremental.TargetID) ([]PartInfo, error) {
	id, err := s.targetID(target)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT p.package, p.name, COALESCE(p.source_file, ''), p.hash, p.obsolete,
		(SELECT COUNT(*) FROM part_stubs ps WHERE ps.part_id = p.id)
		FROM parts p WHERE p.target_id = ? ORDER BY p.name`, id)
	if err != nil {
		return nil, fmt.Errorf("query parts: %w", err)
	}
	defer rows.Close()
	var out []PartInfo
	for rows.Next() {
		var pi PartInfo
		if err := rows.Scan(&pi.Package, &pi.Name, &pi.SourceFile, &pi.Hash, &pi.Obsolete, &pi.Stubs); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		out = append(out, pi)
	}
	return out, rows.Err()
}

// LoadParts reads every part of target with its stubs, ordered by part
// name. The second result names the obsolete parts.
func (s *Store) LoadParts(target incremental.TargetID) ([]*symbols.Part, []string, error) {
	id, err := s.targetID(target)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.db.Query(`SELECT p.id, p.package, p.name, COALESCE(p.source_file, ''), p.obsolete, ps.body
		FROM parts p LEFT JOIN part_stubs ps ON ps.part_id = p.id
		WHERE p.target_id = ? ORDER BY p.name, ps.ordinal`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load parts: %w", err)
	}
	defer rows.Close()

	var parts []*symbols.Part
	var obsolete []string
	byID := make(map[int64]*symbols.Part)
	for rows.Next() {
		var (
			partID   int64
			p        symbols.Part
			isOld    bool
			stubBody sql.NullString
		)
		if err := rows.Scan(&partID, &p.Package, &p.Name, &p.SourceFile, &isOld, &stubBody); err != nil {
			return nil, nil, fmt.Errorf("scan part: %w", err)
		}
		part, ok := byID[partID]
		if !ok {
			part = &p
			byID[partID] = part
			parts = append(parts, part)
			if isOld {
				obsolete = append(obsolete, part.Name)
			}
		}
		if stubBody.Valid {
			var stub symbols.Stub
			if err := json.Unmarshal([]byte(stubBody.String), &stub); err != nil {
				return nil, nil, fmt.Errorf("decode stub in part %q: %w", part.Name, err)
			}
			part.Stubs = append(part.Stubs, &stub)
		}
	}
	return parts, obsolete, rows.Err()
}

// MarkObsolete flags parts of target so caches stop serving them.
func (s *Store) MarkObsolete(target incremental.TargetID, names ...string) error {
	id, err := s.targetID(target)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	args := append([]any{id}, stringsToArgs(names)...)
	_, err = s.db.Exec("UPDATE parts SET obsolete = TRUE WHERE target_id = ? AND name IN ("+placeholderList(len(names))+")", args...)
	if err != nil {
		return fmt.Errorf("mark obsolete: %w", err)
	}
	return nil
}

// MarkDeletedSources marks obsolete the parts of target whose source file
// is not among sources, and returns their names. Parts without a source
// file are kept. An unknown target has nothing to mark.
func (s *Store) MarkDeletedSources(target incremental.TargetID, sources []string) ([]string, error) {
	infos, err := s.PartInfos(target)
	if tderrors.IsCode(err, tderrors.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(sources))
	for _, f := range sources {
		present[f] = true
	}
	var gone []string
	for _, pi := range infos {
		if pi.SourceFile != "" && !pi.Obsolete && !present[pi.SourceFile] {
			gone = append(gone, pi.Name)
		}
	}
	if err := s.MarkObsolete(target, gone...); err != nil {
		return nil, err
	}
	return gone, nil
}

// partHashes maps the part names of a target row to their saved hashes.
func (s *Store) partHashes(targetID int64) (map[string]string, error) {
	rows, err := s.db.Query("SELECT name, hash FROM parts WHERE target_id = ?", targetID)
	if err != nil {
		return nil, fmt.Errorf("query hashes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		out[name] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read hashes: %w", err)
	}
	return out, nil
}

// ChangedParts compares parts against what is saved for target and returns
// the names of parts added, removed or whose signatures changed, sorted.
// A target that was never saved reports every part as changed.
func (s *Store) ChangedParts(target incremental.TargetID, parts []*symbols.Part) ([]string, error) {
	saved := make(map[string]string)
	id, err := s.targetID(target)
	switch {
	case tderrors.IsCode(err, tderrors.CodeNotFound):
	case err != nil:
		return nil, err
	default:
		if saved, err = s.partHashes(id); err != nil {
			return nil, err
		}
	}

	changed := make(map[string]bool)
	for _, p := range parts {
		if h, ok := saved[p.Name]; !ok || h != PartHash(p) {
			changed[p.Name] = true
		}
		delete(saved, p.Name)
	}
	for name := range saved {
		changed[name] = true
	}
	out := make([]string, 0, len(changed))
	for name := range changed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// SetMetadata stores a key/value pair.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec("INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// Metadata returns the value stored under key, or "" if absent.
func (s *Store) Metadata(key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("metadata %q: %w", key, err)
	}
	return v.String, nil
}
