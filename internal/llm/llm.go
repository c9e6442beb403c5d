// Package llm dispatches prompts to a locally installed assistant CLI
// (claude, codex, or gemini), selecting a backend from a session's source
// with failover to any other installed backend on error.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Backend names a locally installed assistant CLI.
type Backend string

const (
	BackendClaude Backend = "claude"
	BackendCodex  Backend = "codex"
	BackendGemini Backend = "gemini"
)

// DefaultModels gives the fast/cheap default model per backend.
var DefaultModels = map[Backend]string{
	BackendClaude: "haiku",
	BackendCodex:  "o3",
	BackendGemini: "gemini-2.5-flash",
}

// SourceToBackend maps a Session's vendor source to its native backend.
var SourceToBackend = map[string]Backend{
	"claude_code": BackendClaude,
	"codex":       BackendCodex,
	"gemini":      BackendGemini,
}

var allBackends = []Backend{BackendClaude, BackendCodex, BackendGemini}

// ErrNoBackendAvailable is returned when none of claude/codex/gemini is on PATH.
var ErrNoBackendAvailable = errors.New("llm: no CLI backend available (install claude, codex, or gemini)")

// LLMClient is the capability the consolidation pipeline depends on.
type LLMClient interface {
	Call(ctx context.Context, prompt string, opts CallOptions) (string, error)
	CallFull(ctx context.Context, prompt string, opts FullCallOptions) (*FullResponse, error)
}

// CallOptions selects how Call resolves a backend and model.
type CallOptions struct {
	Source  string  // session source, e.g. "claude_code" — used for backend selection
	Model   string  // overrides the backend's default model
	Backend Backend // explicit backend override; disables failover when set
}

// FullCallOptions extends CallOptions with the session context needed to
// emit a diagnostic trace file.
type FullCallOptions struct {
	CallOptions
	SessionID string
	CWD       string // base directory under which "tests/traces/<id>.json" is written; empty skips tracing
}

// FullResponse is the richer, diagnostic-path response captured from a
// structured CLI call (currently only the claude backend emits thinking/
// usage detail; other backends return Text only).
type FullResponse struct {
	Text        string
	Thinking    []string
	ToolCalls   []string
	ToolResults []string
	Usage       map[string]any
	SessionID   string
	Backend     Backend
	TracePath   string
}

// cliRunner abstracts process execution so tests can inject canned output
// instead of shelling out to a real assistant CLI.
type cliRunner interface {
	run(ctx context.Context, name string, args []string, env []string) (stdout string, stderr string, err error)
}

type realRunner struct{}

func (realRunner) run(ctx context.Context, name string, args []string, env []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if env != nil {
		cmd.Env = env
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Client is the default LLMClient, backed by real CLI subprocesses.
type Client struct {
	lookPath func(string) (string, error)
	runner   cliRunner
}

// NewClient returns a Client that shells out to whichever CLIs are on PATH.
func NewClient() *Client {
	return &Client{lookPath: exec.LookPath, runner: realRunner{}}
}

func (c *Client) available(b Backend) bool {
	_, err := c.lookPath(string(b))
	return err == nil
}

func (c *Client) resolveBackend(source string, override Backend) (Backend, error) {
	if override != "" {
		if !c.available(override) {
			return "", fmt.Errorf("llm: requested backend %q not found on PATH", override)
		}
		return override, nil
	}
	if source != "" {
		if b, ok := SourceToBackend[source]; ok && c.available(b) {
			return b, nil
		}
	}
	for _, b := range allBackends {
		if c.available(b) {
			return b, nil
		}
	}
	return "", ErrNoBackendAvailable
}

func (c *Client) otherAvailable(exclude Backend) []Backend {
	var others []Backend
	for _, b := range allBackends {
		if b != exclude && c.available(b) {
			others = append(others, b)
		}
	}
	return others
}

func (c *Client) dispatch(ctx context.Context, backend Backend, prompt, model string) (string, error) {
	switch backend {
	case BackendClaude:
		return c.callClaude(ctx, prompt, model)
	case BackendCodex:
		return c.callCodex(ctx, prompt, model)
	case BackendGemini:
		return c.callGemini(ctx, prompt, model)
	default:
		return "", fmt.Errorf("llm: unknown backend %q", backend)
	}
}

// Call dispatches prompt to the resolved backend. On failure, if no explicit
// backend override was given, it attempts each other available backend once
// before returning the first error encountered.
func (c *Client) Call(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	backend, err := c.resolveBackend(opts.Source, opts.Backend)
	if err != nil {
		return "", err
	}
	model := opts.Model
	if model == "" {
		model = DefaultModels[backend]
	}

	text, err := c.dispatch(ctx, backend, prompt, model)
	if err == nil {
		return text, nil
	}
	if opts.Backend != "" {
		return "", err
	}

	firstErr := err
	for _, other := range c.otherAvailable(backend) {
		text, err := c.dispatch(ctx, other, prompt, DefaultModels[other])
		if err == nil {
			return text, nil
		}
	}
	return "", firstErr
}

// CallFull dispatches prompt via the resolved backend's structured path,
// capturing thinking/usage detail when the backend supports it, and writes a
// trace file when opts.CWD is set.
func (c *Client) CallFull(ctx context.Context, prompt string, opts FullCallOptions) (*FullResponse, error) {
	backend, err := c.resolveBackend(opts.Source, opts.Backend)
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = DefaultModels[backend]
	}

	var resp *FullResponse
	if backend == BackendClaude {
		resp, err = c.callClaudeFull(ctx, prompt, model)
	} else {
		// Only the claude backend exposes stream-json turn/usage detail;
		// other backends fall back to a plain-text call wrapped as FullResponse.
		text, dispatchErr := c.dispatch(ctx, backend, prompt, model)
		err = dispatchErr
		resp = &FullResponse{Text: text}
	}
	if err != nil {
		return nil, err
	}
	resp.Backend = backend

	if opts.CWD != "" {
		tracePath, traceErr := writeTrace(opts.CWD, opts.SessionID, resp)
		if traceErr == nil {
			resp.TracePath = tracePath
		}
	}
	return resp, nil
}

func writePromptFile(prompt string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "tactical-prompt-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("llm: failed to create prompt file: %w", err)
	}
	if _, err := f.WriteString(prompt); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("llm: failed to write prompt file: %w", err)
	}
	f.Close()
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

func instructionFor(promptFile string) string {
	return fmt.Sprintf("Read the file %s and follow the instructions in it exactly. Return ONLY the requested output format, nothing else.", promptFile)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
