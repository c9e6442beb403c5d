package parse

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSONL(t *testing.T, path string, lines []map[string]any) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, l := range lines {
		data, err := json.Marshal(l)
		require.NoError(t, err)
		_, err = f.Write(append(data, '\n'))
		require.NoError(t, err)
	}
}

func TestClaudeParserBasicSession(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "-home-user-proj")
	require.NoError(t, os.MkdirAll(projectDir, 0755))
	file := filepath.Join(projectDir, "abc-123.jsonl")

	writeJSONL(t, file, []map[string]any{
		{
			"type": "user", "sessionId": "abc-123", "cwd": "/home/user/Code/proj",
			"gitBranch": "main", "timestamp": "2026-01-01T10:00:00.000Z",
			"message": map[string]any{"role": "user", "content": "fix the login bug"},
		},
		{
			"type": "assistant", "timestamp": "2026-01-01T10:00:05.000Z",
			"message": map[string]any{
				"role": "assistant", "model": "claude-sonnet-4",
				"content": []any{
					map[string]any{"type": "text", "text": "Let me look at this."},
					map[string]any{"type": "tool_use", "id": "t1", "name": "Read", "input": map[string]any{"file": "auth.go"}},
				},
				"usage": map[string]any{"input_tokens": 100, "output_tokens": 50},
			},
		},
	})

	p := NewClaudeParser("/home/user")
	sess, err := p.Parse(file)
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, "abc-123", sess.ID)
	assert.Equal(t, "claude_code", sess.Source)
	assert.Equal(t, "main", sess.GitBranch)
	assert.Equal(t, "claude-sonnet-4", sess.Model)
	assert.Equal(t, 1, sess.UserMessageCount)
	assert.Equal(t, 150, sess.TotalTokens)
	assert.Equal(t, "fix the login bug", sess.Title)
	assert.Contains(t, sess.ToolsUsed, "Read")
	assert.Equal(t, "/home/user/Code/proj", sess.ProjectPath)
	assert.Equal(t, "proj", sess.ProjectName)
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, "tool_call", sess.Messages[2].ContentType)
}

func TestClaudeParserSkipsNonMessageTypes(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sess.jsonl")
	writeJSONL(t, file, []map[string]any{
		{"type": "file-history-snapshot", "timestamp": "2026-01-01T10:00:00Z"},
		{"type": "user", "sessionId": "s1", "timestamp": "2026-01-01T10:00:01Z",
			"message": map[string]any{"role": "user", "content": "hello"}},
	})

	p := NewClaudeParser("/home/user")
	sess, err := p.Parse(file)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 1)
}

func TestCodexParserBasicSession(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rollout-20260101-abc.jsonl")
	writeJSONL(t, file, []map[string]any{
		{"type": "session_meta", "timestamp": "2026-01-01T10:00:00Z",
			"payload": map[string]any{"id": "codex-1", "cwd": "/home/user/Code/proj"}},
		{"type": "turn_context", "timestamp": "2026-01-01T10:00:01Z",
			"payload": map[string]any{"model": "o3"}},
		{"type": "response_item", "timestamp": "2026-01-01T10:00:02Z",
			"payload": map[string]any{"type": "message", "role": "user", "content": []any{
				map[string]any{"text": "how do I add retries"},
			}}},
		{"type": "response_item", "timestamp": "2026-01-01T10:00:03Z",
			"payload": map[string]any{"type": "function_call", "name": "shell", "arguments": "ls", "call_id": "c1"}},
		{"type": "event_msg", "timestamp": "2026-01-01T10:00:04Z",
			"payload": map[string]any{"type": "token_count", "info": map[string]any{
				"total_token_usage": map[string]any{"total_tokens": float64(321)},
			}}},
	})

	p := NewCodexParser("/home/user")
	sess, err := p.Parse(file)
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, "codex-1", sess.ID)
	assert.Equal(t, "o3", sess.Model)
	assert.Equal(t, "how do I add retries", sess.Title)
	assert.Equal(t, 321, sess.TotalTokens)
	assert.Equal(t, 1, sess.UserMessageCount)
	assert.Contains(t, sess.ToolsUsed, "shell")
}

func TestCodexParserSkipsSyntheticPreambleForTitle(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rollout-x.jsonl")
	writeJSONL(t, file, []map[string]any{
		{"type": "session_meta", "timestamp": "2026-01-01T10:00:00Z", "payload": map[string]any{"id": "s1"}},
		{"type": "response_item", "timestamp": "2026-01-01T10:00:01Z",
			"payload": map[string]any{"type": "message", "role": "user", "content": []any{
				map[string]any{"text": "<environment_context>\nsome setup\n</environment_context>"},
			}}},
		{"type": "response_item", "timestamp": "2026-01-01T10:00:02Z",
			"payload": map[string]any{"type": "message", "role": "user", "content": []any{
				map[string]any{"text": "actual question here"},
			}}},
	})

	p := NewCodexParser("/home/user")
	sess, err := p.Parse(file)
	require.NoError(t, err)
	assert.Equal(t, "actual question here", sess.Title)
}

func TestCodexParserEventMsgUserMessageTitleNotFiltered(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rollout-y.jsonl")
	writeJSONL(t, file, []map[string]any{
		{"type": "session_meta", "timestamp": "2026-01-01T10:00:00Z", "payload": map[string]any{"id": "s1"}},
		{"type": "event_msg", "timestamp": "2026-01-01T10:00:01Z",
			"payload": map[string]any{"type": "user_message", "message": "<environment_context> looks like preamble"}},
	})

	p := NewCodexParser("/home/user")
	sess, err := p.Parse(file)
	require.NoError(t, err)
	// event_msg.user_message titles are not filtered, unlike response_item ones.
	assert.Equal(t, "<environment_context> looks like preamble", sess.Title)
}

func TestGeminiParserBasicSession(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "session-1.json")
	doc := map[string]any{
		"sessionId": "gem-1", "projectHash": "deadbeef",
		"startTime": "2026-01-01T10:00:00Z", "lastUpdated": "2026-01-01T10:05:00Z",
		"messages": []any{
			map[string]any{"type": "user", "timestamp": "2026-01-01T10:00:00Z", "content": "what's new"},
			map[string]any{"type": "gemini", "timestamp": "2026-01-01T10:00:01Z", "model": "gemini-2.5-pro",
				"tokens": map[string]any{"total": float64(42)}, "content": "here's what's new"},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0644))

	p := NewGeminiParser("/home/user")
	sess, err := p.Parse(file)
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, "gem-1", sess.ID)
	assert.Equal(t, "gemini-2.5-pro", sess.Model)
	assert.Equal(t, 42, sess.TotalTokens)
	assert.Equal(t, "what's new", sess.Title)
	assert.Equal(t, 1, sess.UserMessageCount)
}

func TestGeminiParserEmptyMessagesReturnsNil(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "session-empty.json")
	data, _ := json.Marshal(map[string]any{"sessionId": "x", "messages": []any{}})
	require.NoError(t, os.WriteFile(file, data, 0644))

	p := NewGeminiParser("/home/user")
	sess, err := p.Parse(file)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestIsoToEpochHandlesFormats(t *testing.T) {
	assert.NotZero(t, isoToEpoch("2026-01-01T10:00:00Z"))
	assert.NotZero(t, isoToEpoch("2026-01-01T10:00:00.123456"))
	assert.Equal(t, int64(0), isoToEpoch("not-a-date"))
	assert.Equal(t, int64(0), isoToEpoch(""))
}

func TestTruncateAddsEllipsisMarker(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel…[truncated]", truncate("hello", 3))
}

func TestInferProjectFromCwdFindsProjectsRoot(t *testing.T) {
	path, name := inferProjectFromCwd("/home/user/Code/myproj/sub", "/home/user")
	assert.Equal(t, "/home/user/Code/myproj", path)
	assert.Equal(t, "myproj", name)
}

func TestInferProjectFromCwdOutsideHome(t *testing.T) {
	path, name := inferProjectFromCwd("/opt/service", "/home/user")
	assert.Equal(t, "/opt/service", path)
	assert.Equal(t, "service", name)
}

func TestInferProjectFromCwdEmpty(t *testing.T) {
	path, name := inferProjectFromCwd("", "/home/user")
	assert.Equal(t, "", path)
	assert.Equal(t, "", name)
}
