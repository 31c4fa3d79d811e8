// Package store persists the artifacts and history of differential
// operations: JSON snapshot files (baseline, delta, verification report) and
// a SQLite-backed operation history.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/node"
)

// Artifact function names. They terminate the generated file name so the
// artifact kind is readable from the suffix.
const (
	FunctionBaseline     = "pre_update_baseline"
	FunctionDelta        = "delta"
	FunctionVerification = "post_update_verification"
)

const timestampLayout = "20060102T150405Z"

// ArtifactStore writes and reads operation artifacts beneath a base
// directory. All I/O is synchronous.
type ArtifactStore struct {
	baseDir string
	logger  zerolog.Logger
}

// NewArtifactStore creates a store rooted at baseDir, creating it if needed.
func NewArtifactStore(baseDir string, logger zerolog.Logger) (*ArtifactStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &ArtifactStore{
		baseDir: baseDir,
		logger:  logger.With().Str("component", "store").Logger(),
	}, nil
}

// BaseDir returns the artifact root.
func (s *ArtifactStore) BaseDir() string {
	return s.baseDir
}

// GenerateFileName builds the deterministic artifact name for a
// (target, domain, function, timestamp) tuple. The function lands directly
// before the extension so baselines end in _pre_update_baseline.json and so
// on.
func GenerateFileName(target, domain, function string, timestamp time.Time, ext string) string {
	parts := []string{sanitizeComponent(target)}
	if domain != "" {
		parts = append(parts, sanitizeComponent(domain))
	}
	parts = append(parts, timestamp.UTC().Format(timestampLayout), function)
	return strings.Join(parts, "_") + "." + strings.TrimPrefix(ext, ".")
}

// sanitizeComponent makes a name component filesystem-safe. URL schemes are
// dropped and separator characters collapsed to dashes.
func sanitizeComponent(s string) string {
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-", "_", "-")
	return strings.Trim(replacer.Replace(s), "-")
}

// SaveNode writes a configuration tree as indented JSON and returns the full
// path. Depth is unbounded; trees nest arbitrarily via children.
func (s *ArtifactStore) SaveNode(n *node.Node, fileName string) (string, error) {
	return s.save(n, fileName)
}

// SaveReport writes any JSON-marshalable report.
func (s *ArtifactStore) SaveReport(report any, fileName string) (string, error) {
	return s.save(report, fileName)
}

func (s *ArtifactStore) save(v any, fileName string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}
	path := filepath.Join(s.baseDir, fileName)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("Artifact saved")
	return path, nil
}

// LoadNode reads a configuration tree from a JSON artifact.
func (s *ArtifactStore) LoadNode(path string) (*node.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	n, err := node.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}
	return n, nil
}
