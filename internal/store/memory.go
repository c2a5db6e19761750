package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MemoryEntry is one remembered sentence.
type MemoryEntry struct {
	ID              string
	SourceText      string
	SourceLang      string
	TargetLang      string
	Translation     string
	Transliteration string
	Provider        string
	Model           string
	Hits            int
	Invalidated     bool
	LastUsed        time.Time
}

type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalHits      int
}

// Lookup returns the remembered entry for a sentence. Invalidated entries
// are misses. A hit bumps the entry's usage counters.
func (s *Store) Lookup(ctx context.Context, sourceText, sourceLang, targetLang string) (*MemoryEntry, bool, error) {
	key := normalizeText(sourceText)
	e := &MemoryEntry{SourceText: key, SourceLang: sourceLang, TargetLang: targetLang}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, translation, transliteration, provider, model, hits, invalidated
		 FROM translation_memory WHERE source_text = ? AND source_lang = ? AND target_lang = ?`,
		key, sourceLang, targetLang).
		Scan(&e.ID, &e.Translation, &e.Transliteration, &e.Provider, &e.Model, &e.Hits, &e.Invalidated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if e.Invalidated {
		return nil, false, nil
	}

	e.Hits++
	e.LastUsed = time.Now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memory SET hits = hits + 1, last_used = ? WHERE id = ?`, e.LastUsed, e.ID)
	return e, true, err
}

// Remember stores or replaces the entry for a sentence.
func (s *Store) Remember(ctx context.Context, e MemoryEntry) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translation_memory
		   (id, source_text, source_lang, target_lang, translation, transliteration, provider, model, hits, invalidated, last_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, FALSE, ?, ?)
		 ON CONFLICT(source_text, source_lang, target_lang) DO UPDATE SET
		   translation = excluded.translation,
		   transliteration = excluded.transliteration,
		   provider = excluded.provider,
		   model = excluded.model,
		   invalidated = FALSE,
		   last_used = excluded.last_used`,
		uuid.NewString(), normalizeText(e.SourceText), e.SourceLang, e.TargetLang,
		e.Translation, e.Transliteration, e.Provider, e.Model, now, now)
	return err
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE translation_memory SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory WHERE id = ?`, id)
	return err
}

// ClearMemory removes every entry and returns how many were deleted.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns entries, most recently used first. A zero limit means
// no limit.
func (s *Store) ListMemory(ctx context.Context, limit int) ([]MemoryEntry, error) {
	query := `SELECT id, source_text, source_lang, target_lang, translation, transliteration,
	                 provider, model, hits, invalidated, last_used
	          FROM translation_memory ORDER BY last_used DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.SourceLang, &e.TargetLang, &e.Translation,
			&e.Transliteration, &e.Provider, &e.Model, &e.Hits, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	var st CacheStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN invalidated THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(hits), 0)
		FROM translation_memory`).
		Scan(&st.TotalEntries, &st.ActiveEntries, &st.InvalidEntries, &st.TotalHits)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// maxFuzzyRunes caps the edit-distance work per candidate.
const maxFuzzyRunes = 500

// LookupSimilar returns the active entry whose source is most similar to
// sourceText, if its similarity reaches threshold (0..1). A threshold of
// zero or less disables the lookup.
func (s *Store) LookupSimilar(ctx context.Context, sourceText, sourceLang, targetLang string, threshold float64) (*MemoryEntry, float64, error) {
	if threshold <= 0 {
		return nil, 0, nil
	}
	key := []rune(normalizeText(sourceText))
	if len(key) > maxFuzzyRunes {
		return nil, 0, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_text, translation, transliteration, provider, model, hits
		 FROM translation_memory WHERE source_lang = ? AND target_lang = ? AND NOT invalidated`,
		sourceLang, targetLang)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var best *MemoryEntry
	bestScore := 0.0
	for rows.Next() {
		e := MemoryEntry{SourceLang: sourceLang, TargetLang: targetLang}
		if err := rows.Scan(&e.ID, &e.SourceText, &e.Translation, &e.Transliteration, &e.Provider, &e.Model, &e.Hits); err != nil {
			return nil, 0, err
		}
		cand := []rune(e.SourceText)
		longest := max(len(key), len(cand))
		if longest == 0 || 1-float64(abs(len(key)-len(cand)))/float64(longest) < threshold {
			continue
		}
		score := similarity(key, cand)
		if score >= threshold && score > bestScore {
			bestScore = score
			best = &e
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return best, bestScore, nil
}

// similarity is 1 minus the normalised edit distance.
func similarity(a, b []rune) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
