// Package store persists translation memory, glossary terms and the
// fallback audit trail in a local sqlite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Workers write concurrently; a single connection keeps sqlite from
	// returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS translation_memory (
	id TEXT PRIMARY KEY,
	source_text TEXT NOT NULL,
	source_lang TEXT NOT NULL,
	target_lang TEXT NOT NULL,
	translation TEXT NOT NULL,
	transliteration TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	hits INTEGER NOT NULL DEFAULT 0,
	invalidated BOOLEAN NOT NULL DEFAULT FALSE,
	last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(source_text, source_lang, target_lang)
);

CREATE TABLE IF NOT EXISTS glossary (
	id TEXT PRIMARY KEY,
	source_lang TEXT NOT NULL,
	target_lang TEXT NOT NULL,
	source_term TEXT NOT NULL,
	target_term TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(source_lang, target_lang, source_term)
);

CREATE TABLE IF NOT EXISTS fallback_events (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	concern TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	trigger_kind TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(job_id, concern)
);

CREATE INDEX IF NOT EXISTS idx_memory_pair ON translation_memory(source_lang, target_lang);
CREATE INDEX IF NOT EXISTS idx_glossary_pair ON glossary(source_lang, target_lang);
CREATE INDEX IF NOT EXISTS idx_fallback_job ON fallback_events(job_id);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText is the memory key form of a sentence.
func normalizeText(text string) string {
	return norm.NFC.String(strings.Join(strings.Fields(text), " "))
}
