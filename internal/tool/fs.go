package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathInput is the argument shape shared by the path-only tools.
type PathInput struct {
	Path string `json:"path"`
}

// WriteInput is the argument shape of write_file.
type WriteInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CreateFolder creates the final directory of the given path.
type CreateFolder struct {
	Sandbox *Sandbox
}

func (t *CreateFolder) Name() string { return "create_folder" }

func (t *CreateFolder) Validate(raw json.RawMessage) error {
	return validatePath(raw, t.Name())
}

func (t *CreateFolder) Execute(ctx context.Context, raw json.RawMessage) (Result, error) {
	var in PathInput
	_ = json.Unmarshal(raw, &in)

	resolved, err := t.Sandbox.Resolve(in.Path)
	if err != nil {
		return Result{OK: false, Output: err.Error()}, err
	}
	if err := os.Mkdir(resolved, 0o755); err != nil && !os.IsExist(err) {
		return Result{OK: false, Output: err.Error()}, fmt.Errorf("create_folder failed: %w", err)
	}
	return Result{OK: true, Output: "folder created"}, nil
}

// ListDir lists the entries of a directory.
type ListDir struct {
	Sandbox *Sandbox
}

func (t *ListDir) Name() string { return "list_dir" }

func (t *ListDir) Validate(raw json.RawMessage) error {
	return validatePath(raw, t.Name())
}

func (t *ListDir) Execute(ctx context.Context, raw json.RawMessage) (Result, error) {
	var in PathInput
	_ = json.Unmarshal(raw, &in)

	resolved, err := t.Sandbox.Resolve(in.Path)
	if err != nil {
		return Result{OK: false, Output: err.Error()}, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return Result{OK: false, Output: "directory not found: " + in.Path}, fmt.Errorf("list_dir failed: %w", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return Result{OK: true, Output: strings.Join(names, "\n")}, nil
}

// ReadFile reads a text file, capped at CharLimit characters.
type ReadFile struct {
	Sandbox   *Sandbox
	CharLimit int
}

func (t *ReadFile) Name() string { return "read_file" }

func (t *ReadFile) Validate(raw json.RawMessage) error {
	return validatePath(raw, t.Name())
}

func (t *ReadFile) Execute(ctx context.Context, raw json.RawMessage) (Result, error) {
	var in PathInput
	_ = json.Unmarshal(raw, &in)

	resolved, err := t.Sandbox.Resolve(in.Path)
	if err != nil {
		return Result{OK: false, Output: err.Error()}, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Result{OK: false, Output: "path not found: " + in.Path}, fmt.Errorf("read_file failed: %w", err)
	}

	limit := t.CharLimit
	if limit <= 0 {
		limit = 10000
	}
	content := string(data)
	runes := []rune(content)
	if len(runes) > limit {
		return Result{
			OK:        true,
			Output:    string(runes[:limit]) + "... more characters are in this file.",
			Truncated: true,
		}, nil
	}
	return Result{OK: true, Output: content}, nil
}

// WriteFile writes content to a file. The parent directory must exist.
type WriteFile struct {
	Sandbox *Sandbox
}

func (t *WriteFile) Name() string { return "write_file" }

func (t *WriteFile) Validate(raw json.RawMessage) error {
	var in WriteInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("invalid write_file input: %w", err)
	}
	if strings.TrimSpace(in.Path) == "" {
		return fmt.Errorf("write_file.path is required")
	}
	if in.Content == "" {
		return fmt.Errorf("write_file.content is required")
	}
	return nil
}

func (t *WriteFile) Execute(ctx context.Context, raw json.RawMessage) (Result, error) {
	var in WriteInput
	_ = json.Unmarshal(raw, &in)

	resolved, err := t.Sandbox.Resolve(in.Path)
	if err != nil {
		return Result{OK: false, Output: err.Error()}, err
	}
	if _, err := os.Stat(filepath.Dir(resolved)); err != nil {
		msg := "folder not found: " + filepath.Dir(resolved)
		return Result{OK: false, Output: msg}, fmt.Errorf("write_file failed: %s", msg)
	}
	if err := os.WriteFile(resolved, []byte(in.Content), 0o644); err != nil {
		return Result{OK: false, Output: err.Error()}, fmt.Errorf("write_file failed: %w", err)
	}
	return Result{OK: true, Output: "successfully written to file"}, nil
}

func validatePath(raw json.RawMessage, toolName string) error {
	var in PathInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("invalid %s input: %w", toolName, err)
	}
	if strings.TrimSpace(in.Path) == "" {
		return fmt.Errorf("%s.path is required", toolName)
	}
	return nil
}
