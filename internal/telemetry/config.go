package telemetry

import (
	"os"
)

var (
	debugModeEnabled       bool
	observeEnabled         bool
	persistPayloadsEnabled bool
	verboseEnabled         bool
)

func init() {
	// Read once at process start. Mid-run environment changes have no effect
	// apart from the explicit "1" overrides below.
	debugModeEnabled = os.Getenv("ORT_DEBUG") == "1"

	// Observe: default to 1 when debug=1 and ORT_OBSERVE_JSON is unset; honour explicit 0/1.
	if v, ok := os.LookupEnv("ORT_OBSERVE_JSON"); ok {
		observeEnabled = (v == "1")
	} else {
		observeEnabled = debugModeEnabled
	}

	// Persist payloads: same defaulting as observe.
	if v, ok := os.LookupEnv("ORT_PERSIST_API_PAYLOADS"); ok {
		persistPayloadsEnabled = (v == "1")
	} else {
		persistPayloadsEnabled = debugModeEnabled
	}

	verboseEnabled = os.Getenv("ORT_VERBOSE") == "1"
}

// DebugModeEnabled reports whether ORT_DEBUG=1 was set.
func DebugModeEnabled() bool {
	return debugModeEnabled || os.Getenv("ORT_DEBUG") == "1"
}

// ObserveEnabled reports whether JSONL emission is on.
func ObserveEnabled() bool {
	// Tests enable emission mid-run through the env override.
	if os.Getenv("ORT_OBSERVE_JSON") == "1" {
		return true
	}
	return observeEnabled
}

// PersistPayloadsEnabled reports whether request and response bodies are written to disk.
func PersistPayloadsEnabled() bool {
	if os.Getenv("ORT_PERSIST_API_PAYLOADS") == "1" {
		return true
	}
	return persistPayloadsEnabled
}

func VerboseEnabled() bool {
	return verboseEnabled || os.Getenv("ORT_VERBOSE") == "1"
}

// ArtifactsDir is where events and payloads are written.
func ArtifactsDir() string {
	if d := os.Getenv("ORT_ARTIFACTS_DIR"); d != "" {
		return d
	}
	return ".agent"
}
