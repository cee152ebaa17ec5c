// Package cache implements the incremental per-module analysis cache
// (SPEC_FULL.md §3, enrichment over spec.md's module-at-a-time model,
// §5): a repeat `hydra analyze` run over an unchanged module skips
// re-running the dataflow fixpoint and rule packs entirely.
//
// Grounded on internal/store/store.go (SQLite open/pragma/schema
// sequence) and write.go (content-addressed row keyed by a hash of the
// input), narrowed from the teacher's full event-log schema to a single
// table keyed by the module source hash.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/finding"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS module_cache (
	hash       TEXT PRIMARY KEY,
	module     TEXT NOT NULL,
	findings   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Cache is a content-addressed store of per-module findings, keyed by a
// hash of the module's source text plus the checker configuration (a
// config change must invalidate every cached entry, since rule
// selection and thresholds affect the output).
type Cache struct {
	db *sql.DB
}

// Open creates or opens a SQLite cache database at path, applying the
// same WAL/busy-timeout pragmas as the teacher's store.Open.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Key hashes a module's source text together with the parts of cfg that
// affect rule output (the whole [hydra] section, including ignore-tests,
// the recipient-assertion helpers and the capability type names, plus the
// per-check toggles), so that changing any of them invalidates stale
// entries.
func Key(source string, cfg config.Config) string {
	h := sha256.New()
	h.Write([]byte(source))
	fmt.Fprintf(h, "|hydra=%+v|checks=%+v", cfg.Hydra, cfg.Checks)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached findings for key, if present.
func (c *Cache) Get(key string) ([]finding.SafetyViolation, bool, error) {
	var raw string
	err := c.db.QueryRow(`SELECT findings FROM module_cache WHERE hash = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache: %w", err)
	}
	var vs []finding.SafetyViolation
	if err := json.Unmarshal([]byte(raw), &vs); err != nil {
		return nil, false, fmt.Errorf("decode cached findings: %w", err)
	}
	return vs, true, nil
}

// Put stores module's findings under key, replacing any prior entry.
func (c *Cache) Put(key, module string, vs []finding.SafetyViolation) error {
	raw, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT INTO module_cache (hash, module, findings, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET module = excluded.module, findings = excluded.findings, created_at = excluded.created_at`,
		key, module, string(raw), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}
