package fsops

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/petasbytes/go-openrouter/tools"
)

// MaxReadBytes caps read_file so one result cannot flood the context window.
const MaxReadBytes = 64 << 10

// ReadFile returns the content of a file under the sandbox.
func (s *Sandbox) ReadFile(relPath string) (string, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", notFound(err)
	}
	if fi.IsDir() {
		return "", ToolError{Code: CodeNotAFile, Message: "path is a directory"}
	}
	if fi.Size() > MaxReadBytes {
		return "", ToolError{Code: CodeTooLarge, Message: "file exceeds the read limit"}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ListFiles lists the entries of a directory under the sandbox, sorted, with
// directories suffixed by "/". Denied entries are omitted.
func (s *Sandbox) ListFiles(relDir string) ([]string, error) {
	if relDir == "" {
		relDir = "."
	}
	abs, err := s.Resolve(relDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(err)
		}
		return nil, ToolError{Code: CodeNotADir, Message: "path is not a directory"}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if abs == s.root && (name == ".git" || name == ".agent") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ToolError{Code: CodeNotFound, Message: "no such file or directory"}
	}
	return err
}

type readFileInput struct {
	Path string `json:"path" jsonschema:"description=Relative path of a file in the working directory"`
}

type listFilesInput struct {
	Path string `json:"path,omitempty" jsonschema:"description=Relative directory path; defaults to the working directory"`
}

// Tools returns read_file and list_files bound to s. Policy violations are
// returned to the model as ToolError results rather than failing the run.
func Tools(s *Sandbox) []tools.Definition {
	return []tools.Definition{
		{
			Name:        "read_file",
			Description: "Read the contents of a relative file path. Use this to inspect a file. Do not use with directory names.",
			Parameters:  tools.GenerateSchema[readFileInput](),
			Function: tools.Typed(func(_ context.Context, in readFileInput) (any, error) {
				content, err := s.ReadFile(in.Path)
				return toolResult(content, err)
			}),
		},
		{
			Name:        "list_files",
			Description: "List files and directories at a relative path. Directories end with a slash.",
			Parameters:  tools.GenerateSchema[listFilesInput](),
			Function: tools.Typed(func(_ context.Context, in listFilesInput) (any, error) {
				names, err := s.ListFiles(in.Path)
				return toolResult(names, err)
			}),
		},
	}
}

func toolResult(v any, err error) (any, error) {
	var te ToolError
	if errors.As(err, &te) {
		return te, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
