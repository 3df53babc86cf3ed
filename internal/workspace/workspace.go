package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager owns the directory that holds local working copies. Working
// copies persist across runs so the source synchronizer can update in
// place instead of recloning.
type Manager struct {
	root string
}

// New ensures the workspace root exists and is accessible.
func New(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Path returns the working copy location for the named project without
// creating it.
func (m *Manager) Path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("project name cannot be empty")
	}
	dir := filepath.Join(m.root, name)
	if err := m.guard(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// Remove deletes the named working copy, refusing paths that escape the
// workspace root.
func (m *Manager) Remove(name string) error {
	dir, err := m.Path(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// guard rejects paths resolving outside the configured root.
func (m *Manager) guard(path string) error {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing path outside workspace root: %s", path)
	}
	return nil
}
