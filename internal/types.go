package internal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/valpere/interlinear/internal/fallback"
)

// TranslationTask is one translated sentence as handed to downstream
// consumers. Tasks arrive out of order; Index restores the input order.
type TranslationTask struct {
	Index           int    `json:"index"`
	SentenceNumber  int    `json:"sentence_number"`
	Sentence        string `json:"sentence"`
	TargetLanguage  string `json:"target_language"`
	Translation     string `json:"translation"`
	Transliteration string `json:"transliteration,omitempty"`
}

// Job is the per-run context shared by every unit of work. The fallback
// state is created on first use and lives as long as the Job.
type Job struct {
	ID          string
	ArtifactDir string

	once     sync.Once
	fallback *fallback.State
}

func NewJob(id, artifactDir string) *Job {
	return &Job{ID: id, ArtifactDir: artifactDir}
}

// Fallback returns the job's provider pin state.
func (j *Job) Fallback() *fallback.State {
	j.once.Do(func() { j.fallback = fallback.NewState() })
	return j.fallback
}

const failurePrefix = "[failure] "

// FailureText renders the text stored in a TranslationTask when every
// attempt for a sentence failed.
func FailureText(kind string, retries int, reason string) string {
	return fmt.Sprintf("%s%s failed after %d retries (%s)", failurePrefix, kind, retries, reason)
}

// IsFailure reports whether s was produced by FailureText.
func IsFailure(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), failurePrefix)
}
