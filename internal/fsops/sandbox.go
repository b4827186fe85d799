// Package fsops provides read-only, sandboxed file tools for the chat CLI.
package fsops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Error codes reported to the model.
const (
	CodeOutsideSandbox = "ERR_PATH_OUTSIDE_SANDBOX"
	CodeDeniedRead     = "ERR_DENIED_READ"
	CodeNotFound       = "ERR_NOT_FOUND"
	CodeNotAFile       = "ERR_NOT_A_FILE"
	CodeNotADir        = "ERR_NOT_A_DIRECTORY"
	CodeTooLarge       = "ERR_FILE_TOO_LARGE"
)

// ToolError is a machine-readable error body surfaced to the model as a tool
// result, so a bad path does not end the conversation.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool results small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// Sandbox confines file access to a root directory.
type Sandbox struct {
	root string
}

// NewSandbox resolves root to an absolute, symlink-free path. An empty root
// means the working directory.
func NewSandbox(root string) (*Sandbox, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getwd: %w", err)
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs(%s): %w", root, err)
	}
	// Fall back to the absolute path when the root does not exist yet.
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		abs = r
	}
	return &Sandbox{root: abs}, nil
}

func (s *Sandbox) Root() string { return s.root }

// Resolve maps relPath to an absolute path inside the sandbox. It rejects
// absolute inputs, parent traversal and symlink escapes, and denies reads
// under .git/ and the telemetry artifacts directory .agent/.
func (s *Sandbox) Resolve(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", ToolError{Code: CodeOutsideSandbox, Message: "absolute paths are not allowed"}
	}
	cleaned := filepath.Clean(relPath)
	candidate := filepath.Join(s.root, cleaned)

	// Resolve the whole candidate, or its parent when the leaf is missing, so
	// a symlinked ancestor cannot escape.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else if parent, err := filepath.EvalSymlinks(filepath.Dir(candidate)); err == nil {
		candidate = filepath.Join(parent, filepath.Base(candidate))
	}

	rel, err := filepath.Rel(s.root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ToolError{Code: CodeOutsideSandbox, Message: "requested path resolves outside the sandbox root"}
	}

	relSlash := filepath.ToSlash(rel)
	for _, denied := range []string{".git", ".agent"} {
		if relSlash == denied || strings.HasPrefix(relSlash, denied+"/") {
			return "", ToolError{Code: CodeDeniedRead, Message: "reads under .git/ or .agent/ are not allowed"}
		}
	}
	return candidate, nil
}
