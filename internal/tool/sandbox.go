package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sandbox confines tool paths to one root directory. Relative paths are
// anchored at the root; absolute paths must already lie under it.
type Sandbox struct {
	Root string
}

// NewSandbox resolves root to an absolute path and creates the directory
// if it is missing.
func NewSandbox(root string) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("sandbox root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	abs = filepath.Clean(abs)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root %s: %w", abs, err)
	}
	return &Sandbox{Root: abs}, nil
}

// Resolve validates path against the sandbox and returns the absolute
// location to operate on.
func (s *Sandbox) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is empty")
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(s.Root, candidate)
	}
	candidate = filepath.Clean(candidate)

	if candidate != s.Root && !strings.HasPrefix(candidate, s.Root+string(filepath.Separator)) {
		return "", fmt.Errorf("permission denied: %s is outside the working directory", path)
	}
	return candidate, nil
}
