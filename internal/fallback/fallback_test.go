package fallback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestState_PinIsIdempotent(t *testing.T) {
	s := NewState()

	first, recorded := s.Pin(Decision{Concern: ConcernTranslation, Provider: "backup", Trigger: TriggerQuality})
	if !recorded {
		t.Fatal("expected first pin to be recorded")
	}
	second, recorded := s.Pin(Decision{Concern: ConcernTranslation, Provider: "other", Trigger: TriggerTimeout})
	if recorded {
		t.Error("expected second pin to return the existing decision")
	}
	if second.Provider != first.Provider || second.Trigger != TriggerQuality {
		t.Errorf("second pin = %+v, want %+v", second, first)
	}
	if first.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
}

func TestState_ConcernsAreIndependent(t *testing.T) {
	s := NewState()
	s.Pin(Decision{Concern: ConcernTranslation, Provider: "a"})

	if _, ok := s.Pinned(ConcernTransliteration); ok {
		t.Error("transliteration should not be pinned")
	}
	if _, recorded := s.Pin(Decision{Concern: ConcernTransliteration, Provider: "b"}); !recorded {
		t.Error("expected transliteration pin to be recorded")
	}
	if got := len(s.Decisions()); got != 2 {
		t.Errorf("Decisions() len = %d, want 2", got)
	}
}

func TestState_ConcurrentPinRecordsOnce(t *testing.T) {
	s := NewState()
	var recordedCount atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, recorded := s.Pin(Decision{Concern: ConcernTranslation, Provider: fmt.Sprintf("p%d", i)})
			if recorded {
				recordedCount.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if got := recordedCount.Load(); got != 1 {
		t.Errorf("recorded %d decisions, want exactly 1", got)
	}
	d, ok := s.Pinned(ConcernTranslation)
	if !ok || d.Provider == "" {
		t.Errorf("Pinned() = %+v, %v", d, ok)
	}
}

func TestTracker_EscalatesAfterMaxAttempts(t *testing.T) {
	tr := Policy{MaxAttempts: 3}.Track()

	for i := 0; i < 2; i++ {
		tr.Fail(TriggerQuality, "too_short")
		if _, _, due := tr.Escalate(); due {
			t.Fatalf("escalated after %d failures", i+1)
		}
	}
	tr.Fail(TriggerTransport, "connection refused")
	trigger, reason, due := tr.Escalate()
	if !due {
		t.Fatal("expected escalation after 3 failures")
	}
	if trigger != TriggerTransport || reason != "connection refused" {
		t.Errorf("got trigger=%q reason=%q", trigger, reason)
	}
}

func TestTracker_EscalatesOnTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := Policy{MaxAttempts: 10, Timeout: time.Second}.trackWith(func() time.Time { return now })

	tr.Fail(TriggerQuality, "gibberish")
	if _, _, due := tr.Escalate(); due {
		t.Fatal("escalated before timeout")
	}
	now = now.Add(2 * time.Second)
	trigger, _, due := tr.Escalate()
	if !due || trigger != TriggerTimeout {
		t.Errorf("Escalate() = %q, %v; want timeout, true", trigger, due)
	}
}

func TestTracker_MTErrorEscalatesImmediately(t *testing.T) {
	tr := DefaultPolicy().Track()
	tr.Fail(TriggerMTError, "quota exceeded")

	if trigger, _, due := tr.Escalate(); !due || trigger != TriggerMTError {
		t.Errorf("Escalate() = %q, %v; want mt_error, true", trigger, due)
	}
}

func TestTracker_NoFailuresNoEscalation(t *testing.T) {
	tr := Policy{Timeout: time.Nanosecond}.Track()
	time.Sleep(time.Millisecond)
	if _, _, due := tr.Escalate(); due {
		t.Error("should not escalate without a failure")
	}
	if tr.MaxAttempts() != DefaultMaxAttempts {
		t.Errorf("MaxAttempts() = %d, want %d", tr.MaxAttempts(), DefaultMaxAttempts)
	}
}

func TestReporters_FanOut(t *testing.T) {
	var calls atomic.Int32
	count := ReporterFunc(func(ctx context.Context, jobID string, d Decision) {
		if jobID != "job-1" {
			t.Errorf("jobID = %q", jobID)
		}
		calls.Add(1)
	})

	Reporters{count, nil, count, LogReporter{}}.FallbackActivated(context.Background(), "job-1", Decision{Concern: ConcernTranslation})
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}
