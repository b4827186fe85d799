package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/petasbytes/go-openrouter/chat"
)

// LoadConversation reads a transcript written by SaveConversation. A missing
// file yields a nil slice and no error.
func LoadConversation(path string) ([]chat.Message, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []chat.Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	if err := chat.NewLedger(msgs).Validate(); err != nil {
		return nil, fmt.Errorf("transcript %s: %w", path, err)
	}
	return msgs, nil
}

// SaveConversation writes msgs to path, creating parent directories.
func SaveConversation(path string, msgs []chat.Message) error {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	b, err := json.MarshalIndent(msgs, "", " ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
