package guidance

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Artifact is a debug image written during a session.
type Artifact struct {
	Kind string
	Path string
	At   time.Time
}

// ArtifactStore writes screenshots and crops under a session directory and
// remembers the most recent ones. A store without a directory records
// nothing. Safe for concurrent use.
type ArtifactStore struct {
	dir     string
	limit   int
	logger  *zap.Logger
	mu      sync.Mutex
	seq     int
	history []Artifact
}

// NewArtifactStore creates a store under root/sessionID. An empty root
// disables artifacts.
func NewArtifactStore(root, sessionID string, limit int, logger *zap.Logger) *ArtifactStore {
	s := &ArtifactStore{limit: max(limit, 1), logger: logger}
	if root != "" {
		s.dir = filepath.Join(root, sessionID)
	}
	return s
}

// Enabled reports whether artifacts are written.
func (s *ArtifactStore) Enabled() bool { return s != nil && s.dir != "" }

// Save writes a PNG and records it. Failures are logged, never returned;
// artifacts must not break guidance.
func (s *ArtifactStore) Save(kind string, png []byte) {
	if !s.Enabled() || len(png) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("Failed to create artifact directory.", zap.String("dir", s.dir), zap.Error(err))
		return
	}
	s.seq++
	path := filepath.Join(s.dir, fmt.Sprintf("%03d-%s.png", s.seq, kind))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		s.logger.Warn("Failed to write artifact.", zap.String("path", path), zap.Error(err))
		return
	}
	if len(s.history) == s.limit {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, Artifact{Kind: kind, Path: path, At: time.Now()})
}

// History returns the recorded artifacts, oldest first.
func (s *ArtifactStore) History() []Artifact {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Artifact(nil), s.history...)
}
