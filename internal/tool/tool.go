// Package tool implements the file-system tools the model can call during
// a session, confined to a sandbox root directory.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is the common abstraction for all atomic tools.
type Tool interface {
	Name() string
	Validate(raw json.RawMessage) error
	Execute(ctx context.Context, raw json.RawMessage) (Result, error)
}

// Result is the output envelope fed back to the model.
type Result struct {
	OK        bool   `json:"ok"`
	Output    string `json:"output"`
	Truncated bool   `json:"truncated,omitempty"`
}
