package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// claudeStreamResult accumulates the events of a --output-format stream-json
// claude CLI invocation.
type claudeStreamResult struct {
	ResultText     string
	AssistantTexts []string
	Thinking       []string
	Usage          map[string]any
	SessionID      string
}

func parseClaudeStream(stdout string) claudeStreamResult {
	var res claudeStreamResult
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		switch eventType(event) {
		case "result":
			if r, ok := event["result"].(string); ok {
				res.ResultText = r
			}
			if u, ok := event["usage"].(map[string]any); ok {
				res.Usage = u
			}
			if sid, ok := event["session_id"].(string); ok {
				res.SessionID = sid
			}
		case "assistant":
			msg, _ := event["message"].(map[string]any)
			content, _ := msg["content"].([]any)
			for _, raw := range content {
				block, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				switch eventType(block) {
				case "text":
					if t, ok := block["text"].(string); ok {
						res.AssistantTexts = append(res.AssistantTexts, t)
					}
				case "thinking":
					if t, ok := block["thinking"].(string); ok {
						res.Thinking = append(res.Thinking, t)
					}
				}
			}
		}
	}
	return res
}

func eventType(m map[string]any) string {
	t, _ := m["type"].(string)
	return t
}

// claudeEnv clears CLAUDECODE so a nested claude invocation (common when the
// caller is itself running inside a claude session) isn't rejected.
func claudeEnv() []string {
	env := os.Environ()
	filtered := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, "CLAUDECODE=") {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

func claudeArgs(model, promptFile string) []string {
	return []string{
		"--print",
		"--model", model,
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
		instructionFor(promptFile),
	}
}

func (c *Client) callClaude(ctx context.Context, prompt, model string) (string, error) {
	promptFile, cleanup, err := writePromptFile(prompt)
	if err != nil {
		return "", err
	}
	defer cleanup()

	stdout, stderr, _ := c.runner.run(ctx, "claude", claudeArgs(model, promptFile), claudeEnv())
	res := parseClaudeStream(stdout)

	if res.ResultText != "" {
		return res.ResultText, nil
	}
	if len(res.AssistantTexts) > 0 {
		return strings.Join(res.AssistantTexts, "\n"), nil
	}
	return "", fmt.Errorf("llm: claude CLI returned no output: %s", truncate(stderr, 500))
}

func (c *Client) callClaudeFull(ctx context.Context, prompt, model string) (*FullResponse, error) {
	promptFile, cleanup, err := writePromptFile(prompt)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	stdout, stderr, _ := c.runner.run(ctx, "claude", claudeArgs(model, promptFile), claudeEnv())
	res := parseClaudeStream(stdout)

	text := res.ResultText
	if text == "" && len(res.AssistantTexts) > 0 {
		text = strings.Join(res.AssistantTexts, "\n")
	}
	if text == "" {
		return nil, fmt.Errorf("llm: claude CLI returned no output: %s", truncate(stderr, 500))
	}

	return &FullResponse{
		Text:      text,
		Thinking:  res.Thinking,
		Usage:     res.Usage,
		SessionID: res.SessionID,
	}, nil
}
