package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// PersistExchange writes the request and response bodies of one send to
// <ArtifactsDir>/payloads when payload persistence is enabled. label becomes
// part of the file names, e.g. "ok" or "error". It returns the request file
// path, or "" when nothing was written.
func PersistExchange(label string, request, response []byte) (string, error) {
	if !PersistPayloadsEnabled() {
		return "", nil
	}
	dir := filepath.Join(ArtifactsDir(), "payloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("telemetry: mkdir %s: %w", dir, err)
	}
	stem := fmt.Sprintf("%d-%s", time.Now().UnixNano(), label)
	reqPath := filepath.Join(dir, stem+"-request.json")
	if err := writePayload(reqPath, request); err != nil {
		return "", err
	}
	if len(response) > 0 {
		if err := writePayload(filepath.Join(dir, stem+"-response.json"), response); err != nil {
			return "", err
		}
	}
	return reqPath, nil
}

// writePayload indents valid JSON and writes anything else as-is.
func writePayload(path string, body []byte) error {
	if gjson.ValidBytes(body) {
		body = pretty.Pretty(body)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("telemetry: write %s: %w", path, err)
	}
	return nil
}
