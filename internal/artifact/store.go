package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPrompt is used when no prompt artifact exists on disk.
const DefaultPrompt = "You are a helpful travel assistant."

const (
	promptsSubdir = "prompts"
	toolsSubdir   = "tools"

	activePromptFile = "active_prompt.txt"
	versionedPrompt  = "prompt_v1.txt"
	activeSchemaFile = "active_tool_schema.json"
	versionedSchema  = "tool_schema_v1.json"
)

// Store manages versioned prompt and tool-schema artifacts on disk.
// Reads always prefer the active override over the versioned default.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) *Store {
	if baseDir == "" {
		baseDir = "artifacts"
	}
	return &Store{baseDir: baseDir}
}

func (s *Store) ActivePromptPath() string {
	return filepath.Join(s.baseDir, promptsSubdir, activePromptFile)
}

func (s *Store) VersionedPromptPath() string {
	return filepath.Join(s.baseDir, promptsSubdir, versionedPrompt)
}

func (s *Store) ActiveToolSchemaPath() string {
	return filepath.Join(s.baseDir, toolsSubdir, activeSchemaFile)
}

func (s *Store) VersionedToolSchemaPath() string {
	return filepath.Join(s.baseDir, toolsSubdir, versionedSchema)
}

// ActivePrompt returns the current prompt text and the path it was read from,
// preferring the active override, then the versioned default, then DefaultPrompt.
func (s *Store) ActivePrompt() (string, string) {
	for _, path := range []string{s.ActivePromptPath(), s.VersionedPromptPath()} {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), path
		}
	}
	return DefaultPrompt, s.VersionedPromptPath()
}

// ActiveToolSchemaJSON returns the raw tool schema JSON if an artifact exists.
// A missing or malformed artifact returns nil without error so callers can
// fall back to compiled-in defaults.
func (s *Store) ActiveToolSchemaJSON() ([]byte, string) {
	for _, path := range []string{s.ActiveToolSchemaPath(), s.VersionedToolSchemaPath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if !json.Valid(data) {
			continue
		}
		return data, path
	}
	return nil, ""
}

// WritePrompt writes content to the active prompt override.
func (s *Store) WritePrompt(content string) (string, error) {
	path := s.ActivePromptPath()
	if err := s.writeFile(path, []byte(content)); err != nil {
		return "", err
	}
	return path, nil
}

// WriteToolSchema writes content to the active tool-schema override.
func (s *Store) WriteToolSchema(content string) (string, error) {
	path := s.ActiveToolSchemaPath()
	if err := s.writeFile(path, []byte(content)); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}

// WithBaselinePrompt runs fn with the active prompt temporarily replaced by
// the named baseline version. The previous active prompt is restored on every
// exit path, including fn failure.
func (s *Store) WithBaselinePrompt(version string, fn func() error) error {
	baselinePath := filepath.Join(s.baseDir, promptsSubdir, fmt.Sprintf("prompt_%s.txt", version))
	baseline, err := os.ReadFile(baselinePath)
	if err != nil {
		return fmt.Errorf("read baseline prompt %s: %w", version, err)
	}

	activePath := s.ActivePromptPath()
	previous, readErr := os.ReadFile(activePath)
	hadActive := readErr == nil

	if err := s.writeFile(activePath, baseline); err != nil {
		return fmt.Errorf("pin baseline prompt: %w", err)
	}

	defer func() {
		if hadActive {
			_ = s.writeFile(activePath, previous)
		} else {
			_ = os.Remove(activePath)
		}
	}()

	return fn()
}
