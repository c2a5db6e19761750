package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/interlinear/internal/fallback"
)

// RecordFallback stores a pin decision. A second record for the same job
// and concern is ignored.
func (s *Store) RecordFallback(ctx context.Context, jobID string, d fallback.Decision) error {
	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fallback_events (id, job_id, concern, provider, model, trigger_kind, reason, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id, concern) DO NOTHING`,
		uuid.NewString(), jobID, string(d.Concern), d.Provider, d.Model, string(d.Trigger), d.Reason,
		d.Elapsed.Milliseconds(), ts)
	return err
}

// FallbackEvents returns the decisions recorded for a job, oldest first.
func (s *Store) FallbackEvents(ctx context.Context, jobID string) ([]fallback.Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT concern, provider, model, trigger_kind, reason, elapsed_ms, created_at
		 FROM fallback_events WHERE job_id = ? ORDER BY created_at, concern`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fallback.Decision
	for rows.Next() {
		var d fallback.Decision
		var concern, trigger string
		var elapsedMs int64
		if err := rows.Scan(&concern, &d.Provider, &d.Model, &trigger, &d.Reason, &elapsedMs, &d.Timestamp); err != nil {
			return nil, err
		}
		d.Concern = fallback.Concern(concern)
		d.Trigger = fallback.Trigger(trigger)
		d.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, d)
	}
	return out, rows.Err()
}

// AuditReporter adapts the store to fallback.Reporter. Write failures are
// logged and otherwise ignored.
func (s *Store) AuditReporter(logger *slog.Logger) fallback.Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return fallback.ReporterFunc(func(ctx context.Context, jobID string, d fallback.Decision) {
		if err := s.RecordFallback(ctx, jobID, d); err != nil {
			logger.Error("[store] failed to record fallback", "job", jobID, "concern", string(d.Concern), "error", err)
		}
	})
}
