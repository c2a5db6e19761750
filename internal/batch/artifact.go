package batch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Attempt is what the artifact log keeps about one batch request.
type Attempt struct {
	ID           string        `json:"id"`
	TargetLang   string        `json:"target_lang"`
	Attempt      int           `json:"attempt"`
	Items        []Item        `json:"items"`
	SystemPrompt string        `json:"system_prompt"`
	UserPrompt   string        `json:"user_prompt"`
	Response     string        `json:"response,omitempty"`
	Error        string        `json:"error,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ArtifactLog writes one JSON file per batch attempt into a job directory.
// Writing is best effort: failures are logged and otherwise ignored. A nil
// or empty log writes nothing.
type ArtifactLog struct {
	dir    string
	logger *slog.Logger
}

func NewArtifactLog(dir string, logger *slog.Logger) *ArtifactLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactLog{dir: dir, logger: logger}
}

func (l *ArtifactLog) Write(a Attempt) {
	if l == nil || l.dir == "" {
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err == nil {
		err = os.MkdirAll(l.dir, 0o755)
	}
	if err == nil {
		name := fmt.Sprintf("batch_%s_attempt%d_%s.json", a.TargetLang, a.Attempt, a.ID)
		err = os.WriteFile(filepath.Join(l.dir, name), data, 0o644)
	}
	if err != nil {
		l.logger.Debug("[batch] artifact not written", "dir", l.dir, "error", err)
	}
}
