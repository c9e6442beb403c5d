package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// traceTurn is one entry of a Trace's turns array.
type traceTurn struct {
	Role string `json:"role"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// traceFile is the on-disk shape of a structured-call diagnostic trace.
type traceFile struct {
	SessionID string         `json:"session_id"`
	Backend   Backend        `json:"backend"`
	Model     string         `json:"model,omitempty"`
	CWD       string         `json:"cwd,omitempty"`
	Usage     map[string]any `json:"usage,omitempty"`
	Turns     []traceTurn    `json:"turns"`
}

// writeTrace writes one JSON trace file per structured LLM call under
// {cwd}/tests/traces/<id>.json, summarizing turns and usage.
func writeTrace(cwd, sessionID string, resp *FullResponse) (string, error) {
	dir := filepath.Join(cwd, "tests", "traces")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("llm: failed to create trace dir: %w", err)
	}

	traceID := sessionID
	if traceID == "" {
		traceID = fmt.Sprintf("call-%d", time.Now().UnixNano())
	}
	path := filepath.Join(dir, traceID+".json")

	var turns []traceTurn
	for _, t := range resp.Thinking {
		turns = append(turns, traceTurn{Role: "assistant", Type: "thinking", Text: t})
	}
	turns = append(turns, traceTurn{Role: "assistant", Type: "text", Text: resp.Text})

	doc := traceFile{
		SessionID: sessionID,
		Backend:   resp.Backend,
		CWD:       cwd,
		Usage:     resp.Usage,
		Turns:     turns,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("llm: failed to marshal trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("llm: failed to write trace file: %w", err)
	}
	return path, nil
}
