// Package summarize turns a session's raw messages into its L2 summary via
// an LLMClient, parsing the model's JSON response defensively.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"tactical/internal/llm"
	"tactical/internal/logging"
	"tactical/internal/model"
	"tactical/internal/store"
)

const (
	maxConversationMessages = 200
	minConversationLength   = 100
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

const summarizePromptTemplate = `You are analyzing a CLI coding session transcript. Generate a structured summary.

The session used %s via %s in project %q (cwd: %s).

Here are the messages (user/assistant conversation):

%s

---

Respond with a JSON object (no markdown, just raw JSON):
{
  "summary_text": "A 200-500 word summary of what happened in this session. Include the problem being solved, approaches tried, and final outcome.",
  "key_decisions": ["decision 1", "decision 2", ...],
  "files_touched": ["/path/to/file1.py", ...],
  "commands_run": ["notable command 1", ...],
  "outcome": "completed | partial | error"
}`

var fencedJSONBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Summarizer generates L2 per-session summaries.
type Summarizer struct {
	store *store.Store
	llm   llm.LLMClient
}

// New returns a Summarizer backed by s and client.
func New(s *store.Store, client llm.LLMClient) *Summarizer {
	return &Summarizer{store: s, llm: client}
}

// formatConversation renders messages into a readable transcript, skipping
// thinking blocks, truncating each kind of content, and capping at
// maxConversationMessages included lines with a "N more" marker.
func formatConversation(messages []*model.Message) string {
	var lines []string
	count := 0
	for _, msg := range messages {
		if count >= maxConversationMessages {
			lines = append(lines, fmt.Sprintf("... (%d more messages)", len(messages)-count))
			break
		}

		text := strings.TrimSpace(msg.ContentText)
		if text == "" {
			continue
		}
		if msg.ContentType == "thinking" {
			continue
		}

		switch msg.ContentType {
		case "tool_call":
			tool := msg.ToolName
			if tool == "" {
				tool = "unknown"
			}
			lines = append(lines, fmt.Sprintf("[%s → %s]: %s", msg.Role, tool, truncateRunes(text, 300)))
		case "tool_result":
			lines = append(lines, fmt.Sprintf("[tool result]: %s", truncateRunes(text, 200)))
		default:
			lines = append(lines, fmt.Sprintf("[%s]: %s", msg.Role, truncateRunes(text, 500)))
		}
		count++
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// parseJSONResponse tries, in order: plain JSON, a fenced ```json block, then
// the first balanced {...} substring.
func parseJSONResponse(text string) (map[string]any, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err == nil {
		return data, true
	}

	if m := fencedJSONBlock.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &data); err == nil {
			return data, true
		}
	}

	if block, ok := extractBalancedJSON(text); ok {
		if err := json.Unmarshal([]byte(block), &data); err == nil {
			return data, true
		}
	}
	return nil, false
}

// extractBalancedJSON scans for the first brace-balanced {...} substring,
// ignoring braces inside quoted strings.
func extractBalancedJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceField(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func buildPrompt(sess *model.Session, conversation string) string {
	modelName := sess.Model
	if modelName == "" {
		modelName = "unknown"
	}
	project := sess.ProjectName
	if project == "" {
		project = "unknown"
	}
	cwd := sess.CWD
	if cwd == "" {
		cwd = "unknown"
	}
	return fmt.Sprintf(summarizePromptTemplate, modelName, sess.Source, project, cwd, conversation)
}

func loadRenderable(s *store.Store, sessionID string) (*model.Session, string, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, "", err
	}
	if sess == nil {
		return nil, "", nil
	}

	messages, err := s.GetSessionMessages(sessionID)
	if err != nil {
		return nil, "", err
	}
	if len(messages) == 0 {
		return nil, "", nil
	}

	conversation := formatConversation(messages)
	if utf8.RuneCountInString(conversation) < minConversationLength {
		return nil, "", nil
	}
	return sess, conversation, nil
}

// SummarizeSession generates and persists an L2 summary for sessionID. It
// returns (nil, nil) when the session is missing, empty, too short to
// summarize, or the LLM's response could not be parsed as JSON — all treated
// by the caller as "skipped", not an error.
func (s *Summarizer) SummarizeSession(ctx context.Context, sessionID, modelOverride, backendOverride string) (*model.Summary, error) {
	timer := logging.StartTimer(logging.CategorySummarize, "summarize.SummarizeSession")
	defer timer.Stop()

	sess, conversation, err := loadRenderable(s.store, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	prompt := buildPrompt(sess, conversation)
	text, err := s.llm.Call(ctx, prompt, llm.CallOptions{
		Source:  sess.Source,
		Model:   modelOverride,
		Backend: llm.Backend(backendOverride),
	})
	if err != nil {
		return nil, err
	}

	data, ok := parseJSONResponse(text)
	if !ok {
		return nil, nil
	}

	generatorModel := modelOverride
	if generatorModel == "" {
		generatorModel = "default"
	}

	summary := &model.Summary{
		SessionID:      sessionID,
		SummaryText:    stringField(data, "summary_text"),
		KeyDecisions:   stringSliceField(data, "key_decisions"),
		FilesTouched:   stringSliceField(data, "files_touched"),
		CommandsRun:    stringSliceField(data, "commands_run"),
		Outcome:        orDefault(stringField(data, "outcome"), "unknown"),
		GeneratedAt:    nowFunc().Unix(),
		GeneratorModel: generatorModel,
	}

	if err := s.store.UpsertSummary(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// SummarizeSessionFull mirrors SummarizeSession but uses the LLM's
// structured diagnostic path, capturing thinking/usage/backend session id
// when the resolved backend supports it (currently claude only) and writing
// a trace file under sess.CWD.
func (s *Summarizer) SummarizeSessionFull(ctx context.Context, sessionID, modelOverride string) (*model.Summary, error) {
	timer := logging.StartTimer(logging.CategorySummarize, "summarize.SummarizeSessionFull")
	defer timer.Stop()

	sess, conversation, err := loadRenderable(s.store, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	prompt := buildPrompt(sess, conversation)
	resp, err := s.llm.CallFull(ctx, prompt, llm.FullCallOptions{
		CallOptions: llm.CallOptions{Source: sess.Source, Model: modelOverride},
		SessionID:   sessionID,
		CWD:         sess.CWD,
	})
	if err != nil {
		return nil, err
	}

	data, ok := parseJSONResponse(resp.Text)
	if !ok {
		return nil, nil
	}

	generatorModel := modelOverride
	if generatorModel == "" {
		generatorModel = "haiku"
	}

	summary := &model.Summary{
		SessionID:       sessionID,
		SummaryText:     stringField(data, "summary_text"),
		KeyDecisions:    stringSliceField(data, "key_decisions"),
		FilesTouched:    stringSliceField(data, "files_touched"),
		CommandsRun:     stringSliceField(data, "commands_run"),
		Outcome:         orDefault(stringField(data, "outcome"), "unknown"),
		GeneratedAt:     nowFunc().Unix(),
		GeneratorModel:  generatorModel,
		ClaudeSessionID: resp.SessionID,
	}
	if len(resp.Thinking) > 0 {
		if b, err := json.Marshal(resp.Thinking); err == nil {
			summary.Thinking = string(b)
		}
	}
	if len(resp.Usage) > 0 {
		if b, err := json.Marshal(resp.Usage); err == nil {
			summary.Usage = string(b)
		}
	}

	if err := s.store.UpsertSummary(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
