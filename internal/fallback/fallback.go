// Package fallback implements the per-job provider pin. A job starts on the
// primary provider and, once a trigger fires, switches to the fallback
// provider for every remaining request. The switch is one-way.
package fallback

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Concern string

const (
	ConcernTranslation     Concern = "translation"
	ConcernTransliteration Concern = "transliteration"
)

type Trigger string

const (
	TriggerQuality   Trigger = "quality"
	TriggerTransport Trigger = "transport"
	TriggerTimeout   Trigger = "timeout"
	TriggerMTError   Trigger = "mt_error"
)

// Decision is the recorded pin for one concern.
type Decision struct {
	Concern   Concern       `json:"concern"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Trigger   Trigger       `json:"trigger"`
	Reason    string        `json:"reason"`
	Elapsed   time.Duration `json:"elapsed"`
	Timestamp time.Time     `json:"timestamp"`
}

// State holds the pins of one job. It is safe for concurrent use.
type State struct {
	mu   sync.Mutex
	pins map[Concern]Decision
}

func NewState() *State {
	return &State{pins: make(map[Concern]Decision)}
}

// Pinned returns the decision recorded for concern, if any.
func (s *State) Pinned(c Concern) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.pins[c]
	return d, ok
}

// Pin records d unless a decision for the same concern already exists.
// It returns the decision in effect and whether this call recorded it.
func (s *State) Pin(d Decision) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pins[d.Concern]; ok {
		return existing, false
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	s.pins[d.Concern] = d
	return d, true
}

// Decisions returns a copy of every recorded pin.
func (s *State) Decisions() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Decision, 0, len(s.pins))
	for _, c := range []Concern{ConcernTranslation, ConcernTransliteration} {
		if d, ok := s.pins[c]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Policy bounds how long a unit of work stays on the primary provider.
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

const (
	DefaultMaxAttempts = 5
	DefaultTimeout     = 2 * time.Minute
)

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Timeout: DefaultTimeout}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Tracker counts failures of one unit of work against the policy.
type Tracker struct {
	policy   Policy
	start    time.Time
	now      func() time.Time
	failures int
	trigger  Trigger
	reason   string
}

// Track starts a tracker at the current time.
func (p Policy) Track() *Tracker {
	return p.trackWith(time.Now)
}

func (p Policy) trackWith(now func() time.Time) *Tracker {
	return &Tracker{policy: p, start: now(), now: now}
}

// MaxAttempts is the number of primary attempts the policy allows.
func (t *Tracker) MaxAttempts() int { return t.policy.attempts() }

// Failures returns how many failures were recorded.
func (t *Tracker) Failures() int { return t.failures }

// Elapsed is the time since the tracker started.
func (t *Tracker) Elapsed() time.Duration { return t.now().Sub(t.start) }

// Fail records one failed attempt.
func (t *Tracker) Fail(trigger Trigger, reason string) {
	t.failures++
	t.trigger = trigger
	t.reason = reason
}

// Escalate reports whether the unit should switch to the fallback provider,
// and why. A MT error escalates immediately; otherwise the attempt budget
// or the timeout must be exhausted.
func (t *Tracker) Escalate() (Trigger, string, bool) {
	if t.failures == 0 {
		return "", "", false
	}
	if t.trigger == TriggerMTError {
		return t.trigger, t.reason, true
	}
	if t.policy.Timeout > 0 && t.Elapsed() > t.policy.Timeout {
		return TriggerTimeout, t.reason, true
	}
	if t.failures >= t.policy.attempts() {
		return t.trigger, t.reason, true
	}
	return "", "", false
}

// Reporter is told about every newly recorded pin.
type Reporter interface {
	FallbackActivated(ctx context.Context, jobID string, d Decision)
}

type ReporterFunc func(ctx context.Context, jobID string, d Decision)

func (f ReporterFunc) FallbackActivated(ctx context.Context, jobID string, d Decision) {
	f(ctx, jobID, d)
}

// Reporters fans a notification out to several reporters.
type Reporters []Reporter

func (rs Reporters) FallbackActivated(ctx context.Context, jobID string, d Decision) {
	for _, r := range rs {
		if r != nil {
			r.FallbackActivated(ctx, jobID, d)
		}
	}
}

// LogReporter writes the structured "fallback activated" event.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) FallbackActivated(ctx context.Context, jobID string, d Decision) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "[fallback] activated",
		"job", jobID,
		"concern", string(d.Concern),
		"provider", d.Provider,
		"model", d.Model,
		"trigger", string(d.Trigger),
		"reason", d.Reason,
		"elapsed", d.Elapsed,
	)
}
