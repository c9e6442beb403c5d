package parse

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CodexParser parses Codex CLI session JSONL files, stored under
// ~/.codex/sessions/{year}/{month}/{date}/rollout-{timestamp}-{uuid}.jsonl.
// Each line has {"timestamp", "type", "payload"}; types: session_meta,
// turn_context, response_item, event_msg.
type CodexParser struct {
	home string
}

// NewCodexParser returns a CodexParser that resolves project paths relative
// to home.
func NewCodexParser(home string) *CodexParser {
	return &CodexParser{home: home}
}

// DiscoverFiles recursively finds every rollout-*.jsonl file beneath each
// base path.
func (p *CodexParser) DiscoverFiles(basePaths []string) ([]string, error) {
	var files []string
	for _, base := range basePaths {
		if _, err := os.Stat(base); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasPrefix(d.Name(), "rollout-") && strings.HasSuffix(d.Name(), ".jsonl") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk codex base path %s: %w", base, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

var codexSyntheticTitlePrefixes = []string{
	"<environment_context>", "# AGENTS.md", "# Context from my IDE", "<INSTRUCTIONS>", "<permissions",
}

func looksLikeCodexSyntheticPreamble(text string) bool {
	for _, prefix := range codexSyntheticTitlePrefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return len(text) >= 2000
}

// Parse reads a Codex transcript and normalizes it.
func (p *CodexParser) Parse(filePath string) (*ParsedSession, error) {
	records, err := readJSONL(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read codex transcript %s: %w", filePath, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var sessionID, cwd, model, title string
	var toolsUsed []string
	var totalTokens, compactionCount int
	var messages []*ParsedMessage
	var ordinal int
	var firstTS, lastTS int64
	var userMsgCount int

	for _, rec := range records {
		ts := isoToEpoch(getString(rec, "timestamp"))
		if ts != 0 && (firstTS == 0 || ts < firstTS) {
			firstTS = ts
		}
		if ts > lastTS {
			lastTS = ts
		}

		recType := getString(rec, "type")
		payload := getMap(rec, "payload")

		switch recType {
		case "session_meta":
			sessionID = getString(payload, "id")
			cwd = getString(payload, "cwd")

		case "turn_context":
			if cwd == "" {
				cwd = getString(payload, "cwd")
			}
			if model == "" {
				model = getString(payload, "model")
			}

		case "response_item":
			msg := parseCodexResponseItem(payload, ordinal, ts)
			if msg != nil {
				messages = append(messages, msg)
				ordinal++
				if msg.Role == "user" && msg.ContentType == "text" {
					userMsgCount++
					text := strings.TrimSpace(msg.ContentText)
					if title == "" && text != "" && !looksLikeCodexSyntheticPreamble(text) {
						title = truncateRunes(text, 200)
					}
				}
				if msg.ToolName != "" {
					toolsUsed = append(toolsUsed, msg.ToolName)
				}
			}

		case "event_msg":
			payloadType := getString(payload, "type")
			switch payloadType {
			case "user_message":
				text := getString(payload, "message")
				if text != "" {
					messages = append(messages, &ParsedMessage{
						Ordinal: ordinal, Role: "user", ContentType: "text",
						ContentText: text, CreatedAt: ts,
					})
					ordinal++
					userMsgCount++
					if title == "" {
						title = truncateRunes(text, 200)
					}
				}
			case "token_count":
				if info := getMap(payload, "info"); info != nil {
					if usage := getMap(info, "total_token_usage"); usage != nil {
						if total := int(getFloat(usage, "total_tokens")); total > 0 {
							totalTokens = total
						}
					}
				}
			}
		}
	}

	if sessionID == "" {
		sessionID = strings.TrimPrefix(strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)), "rollout-")
	}
	if firstTS == 0 {
		firstTS = fileModTime(filePath)
	}
	if lastTS == 0 {
		lastTS = firstTS
	}

	projectPath, projectName := inferProjectFromCwd(cwd, p.home)

	return &ParsedSession{
		ID:               sessionID,
		Source:           "codex",
		ProjectPath:      projectPath,
		ProjectName:      projectName,
		CWD:              cwd,
		Model:            model,
		FirstMessageAt:   firstTS,
		LastMessageAt:    lastTS,
		MessageCount:     len(messages),
		UserMessageCount: userMsgCount,
		TotalTokens:      totalTokens,
		CompactionCount:  compactionCount,
		ToolsUsed:        toolsUsed,
		RawPath:          filePath,
		Title:            title,
		Messages:         messages,
	}, nil
}

func parseCodexResponseItem(payload map[string]any, ordinal int, ts int64) *ParsedMessage {
	ptype := getString(payload, "type")

	switch ptype {
	case "message":
		role := getString(payload, "role")
		if role == "" {
			role = "user"
		}
		var textParts []string
		for _, part := range getSlice(payload, "content") {
			switch p := part.(type) {
			case map[string]any:
				if t := getString(p, "text"); t != "" {
					textParts = append(textParts, t)
				}
			case string:
				textParts = append(textParts, p)
			}
		}
		text := strings.Join(textParts, "\n")
		if text == "" {
			return nil
		}
		return &ParsedMessage{Ordinal: ordinal, Role: role, ContentType: "text", ContentText: text, CreatedAt: ts}

	case "reasoning":
		var textParts []string
		for _, part := range getSlice(payload, "summary") {
			if block, ok := part.(map[string]any); ok {
				textParts = append(textParts, getString(block, "text"))
			}
		}
		text := strings.Join(textParts, "\n")
		if text == "" {
			return nil
		}
		return &ParsedMessage{Ordinal: ordinal, Role: "assistant", ContentType: "thinking", ContentText: text, CreatedAt: ts}

	case "function_call":
		name := getString(payload, "name")
		args := getString(payload, "arguments")
		return &ParsedMessage{
			Ordinal: ordinal, Role: "assistant", ContentType: "tool_call",
			ContentText: truncate(args, 500),
			ContentJSON: mustJSON(map[string]any{"name": name, "arguments": args, "call_id": payload["call_id"]}),
			ToolName:    name,
			CreatedAt:   ts,
		}

	case "function_call_output":
		output := getString(payload, "output")
		return &ParsedMessage{
			Ordinal: ordinal, Role: "tool", ContentType: "tool_result",
			ContentText: truncateDefault(output),
			ContentJSON: mustJSON(map[string]any{"call_id": payload["call_id"], "output": truncate(output, 1000)}),
			CreatedAt:   ts,
		}

	case "custom_tool_call":
		name := getString(payload, "name")
		inp := fmt.Sprintf("%v", payload["input"])
		return &ParsedMessage{
			Ordinal: ordinal, Role: "assistant", ContentType: "tool_call",
			ContentText: truncate(inp, 500),
			ContentJSON: mustJSON(map[string]any{"name": name, "input": truncate(inp, 1000), "call_id": payload["call_id"]}),
			ToolName:    name,
			CreatedAt:   ts,
		}

	case "custom_tool_call_output":
		output := fmt.Sprintf("%v", payload["output"])
		return &ParsedMessage{
			Ordinal: ordinal, Role: "tool", ContentType: "tool_result",
			ContentText: truncateDefault(output), CreatedAt: ts,
		}
	}
	return nil
}
