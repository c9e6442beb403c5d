package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls   []string
	stdout  map[string]string
	stderr  map[string]string
	failing map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{stdout: map[string]string{}, stderr: map[string]string{}, failing: map[string]bool{}}
}

func (f *fakeRunner) run(_ context.Context, name string, args []string, _ []string) (string, string, error) {
	f.calls = append(f.calls, name)
	if f.failing[name] {
		return f.stdout[name], f.stderr[name], errors.New("exit status 1")
	}
	return f.stdout[name], f.stderr[name], nil
}

func testClient(available map[Backend]bool, runner *fakeRunner) *Client {
	return &Client{
		lookPath: func(name string) (string, error) {
			if available[Backend(name)] {
				return "/usr/bin/" + name, nil
			}
			return "", fmt.Errorf("not found: %s", name)
		},
		runner: runner,
	}
}

func TestResolveBackendPrefersSourceNative(t *testing.T) {
	c := testClient(map[Backend]bool{BackendClaude: true, BackendCodex: true}, newFakeRunner())
	backend, err := c.resolveBackend("codex", "")
	require.NoError(t, err)
	assert.Equal(t, BackendCodex, backend)
}

func TestResolveBackendFallsBackWhenNativeUnavailable(t *testing.T) {
	c := testClient(map[Backend]bool{BackendGemini: true}, newFakeRunner())
	backend, err := c.resolveBackend("codex", "")
	require.NoError(t, err)
	assert.Equal(t, BackendGemini, backend)
}

func TestResolveBackendNoneAvailable(t *testing.T) {
	c := testClient(map[Backend]bool{}, newFakeRunner())
	_, err := c.resolveBackend("claude_code", "")
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
}

func TestResolveBackendExplicitOverrideNotOnPath(t *testing.T) {
	c := testClient(map[Backend]bool{BackendCodex: true}, newFakeRunner())
	_, err := c.resolveBackend("", BackendGemini)
	assert.Error(t, err)
}

func TestCallClaudeParsesResultEvent(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["claude"] = `{"type":"system"}
{"type":"assistant","message":{"content":[{"type":"text","text":"draft"}]}}
{"type":"result","result":"final summary","usage":{"input_tokens":10},"session_id":"sess-abc"}
`
	c := testClient(map[Backend]bool{BackendClaude: true}, runner)

	text, err := c.Call(context.Background(), "summarize this", CallOptions{Source: "claude_code"})
	require.NoError(t, err)
	assert.Equal(t, "final summary", text)
}

func TestCallClaudeFallsBackToAssistantTextWhenNoResultEvent(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["claude"] = `{"type":"assistant","message":{"content":[{"type":"text","text":"only draft"}]}}
`
	c := testClient(map[Backend]bool{BackendClaude: true}, runner)

	text, err := c.Call(context.Background(), "summarize this", CallOptions{Backend: BackendClaude})
	require.NoError(t, err)
	assert.Equal(t, "only draft", text)
}

func TestCallFailsOverToAnotherBackendOnError(t *testing.T) {
	runner := newFakeRunner()
	runner.failing["claude"] = true
	runner.stderr["claude"] = "boom"
	runner.stdout["codex"] = "codex output"
	c := testClient(map[Backend]bool{BackendClaude: true, BackendCodex: true}, runner)

	text, err := c.Call(context.Background(), "prompt", CallOptions{Source: "claude_code"})
	require.NoError(t, err)
	assert.Equal(t, "codex output", text)
	assert.Contains(t, runner.calls, "claude")
	assert.Contains(t, runner.calls, "codex")
}

func TestCallWithExplicitBackendDoesNotFailover(t *testing.T) {
	runner := newFakeRunner()
	runner.failing["claude"] = true
	runner.stderr["claude"] = "boom"
	runner.stdout["codex"] = "codex output"
	c := testClient(map[Backend]bool{BackendClaude: true, BackendCodex: true}, runner)

	_, err := c.Call(context.Background(), "prompt", CallOptions{Backend: BackendClaude})
	assert.Error(t, err)
	assert.NotContains(t, runner.calls, "codex")
}

func TestCallPropagatesFirstErrorWhenAllBackendsFail(t *testing.T) {
	runner := newFakeRunner()
	runner.failing["claude"] = true
	runner.stderr["claude"] = "claude boom"
	runner.failing["codex"] = true
	runner.stderr["codex"] = "codex boom"
	c := testClient(map[Backend]bool{BackendClaude: true, BackendCodex: true}, runner)

	_, err := c.Call(context.Background(), "prompt", CallOptions{Source: "claude_code"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude boom")
}

func TestCallCodexTrimsOutput(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["codex"] = "  the answer  \n"
	c := testClient(map[Backend]bool{BackendCodex: true}, runner)

	text, err := c.Call(context.Background(), "prompt", CallOptions{Backend: BackendCodex})
	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
}

func TestCallGeminiReturnsErrorOnEmptyOutput(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["gemini"] = "   "
	c := testClient(map[Backend]bool{BackendGemini: true}, runner)

	_, err := c.Call(context.Background(), "prompt", CallOptions{Backend: BackendGemini})
	assert.Error(t, err)
}

func TestCallFullCapturesThinkingAndUsageForClaude(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["claude"] = `{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"pondering"}]}}
{"type":"result","result":"done","usage":{"output_tokens":5},"session_id":"sess-xyz"}
`
	c := testClient(map[Backend]bool{BackendClaude: true}, runner)

	dir := t.TempDir()
	resp, err := c.CallFull(context.Background(), "prompt", FullCallOptions{
		CallOptions: CallOptions{Backend: BackendClaude},
		SessionID:   "sess-xyz",
		CWD:         dir,
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, []string{"pondering"}, resp.Thinking)
	assert.Equal(t, "sess-xyz", resp.SessionID)
	require.NotEmpty(t, resp.TracePath)

	data, err := os.ReadFile(resp.TracePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pondering")
	assert.Equal(t, filepath.Join(dir, "tests", "traces", "sess-xyz.json"), resp.TracePath)
}

func TestCallFullWithoutCWDSkipsTrace(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["claude"] = `{"type":"result","result":"done"}
`
	c := testClient(map[Backend]bool{BackendClaude: true}, runner)

	resp, err := c.CallFull(context.Background(), "prompt", FullCallOptions{
		CallOptions: CallOptions{Backend: BackendClaude},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.TracePath)
}
