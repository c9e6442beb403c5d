package parse

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ClaudeParser parses Claude Code session JSONL files, stored under
// ~/.claude/projects/{project-slug}/{session-uuid}.jsonl. Each line is a JSON
// object tagged by "type": user, assistant, progress, file-history-snapshot,
// queue-operation.
type ClaudeParser struct {
	home string
}

// NewClaudeParser returns a ClaudeParser that resolves project paths
// relative to home.
func NewClaudeParser(home string) *ClaudeParser {
	return &ClaudeParser{home: home}
}

// DiscoverFiles returns every *.jsonl file directly under a project
// directory (not in subagent subdirectories) beneath each base path.
func (p *ClaudeParser) DiscoverFiles(basePaths []string) ([]string, error) {
	var files []string
	for _, base := range basePaths {
		entries, err := os.ReadDir(base)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read claude base path %s: %w", base, err)
		}
		for _, projectDir := range entries {
			if !projectDir.IsDir() {
				continue
			}
			projectPath := filepath.Join(base, projectDir.Name())
			sessionFiles, err := os.ReadDir(projectPath)
			if err != nil {
				continue
			}
			for _, f := range sessionFiles {
				if !f.IsDir() && strings.HasSuffix(f.Name(), ".jsonl") {
					files = append(files, filepath.Join(projectPath, f.Name()))
				}
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Parse reads a Claude Code transcript and normalizes it.
func (p *ClaudeParser) Parse(filePath string) (*ParsedSession, error) {
	records, err := readJSONL(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read claude transcript %s: %w", filePath, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var sessionID, cwd, model, gitBranch, title string
	var toolsUsed []string
	var totalTokens int
	var messages []*ParsedMessage
	var ordinal int
	var firstTS, lastTS int64
	var userMsgCount int

	for _, rec := range records {
		recType := getString(rec, "type")
		ts := isoToEpoch(getString(rec, "timestamp"))
		if ts != 0 && (firstTS == 0 || ts < firstTS) {
			firstTS = ts
		}
		if ts > lastTS {
			lastTS = ts
		}

		if recType == "file-history-snapshot" || recType == "queue-operation" || recType == "progress" {
			continue
		}

		if sessionID == "" {
			sessionID = getString(rec, "sessionId")
		}
		if cwd == "" {
			cwd = getString(rec, "cwd")
		}
		if gitBranch == "" {
			gitBranch = getString(rec, "gitBranch")
		}

		message := getMap(rec, "message")
		if message == nil {
			continue
		}
		if model == "" {
			model = getString(message, "model")
		}

		if usage := getMap(message, "usage"); usage != nil {
			outTokens := int(getFloat(usage, "output_tokens"))
			inTokens := int(getFloat(usage, "input_tokens"))
			if total := inTokens + outTokens; total > totalTokens {
				totalTokens = total
			}
		}

		content := message["content"]

		switch recType {
		case "user":
			parsed := parseClaudeUserContent(content, ordinal, ts)
			for _, msg := range parsed {
				messages = append(messages, msg)
				ordinal++
				if msg.ContentType == "text" && msg.Role == "user" {
					userMsgCount++
					if title == "" && msg.ContentText != "" {
						title = truncateRunes(msg.ContentText, 200)
					}
				}
			}
		case "assistant":
			parsed := parseClaudeAssistantContent(content, ordinal, ts)
			for _, msg := range parsed {
				messages = append(messages, msg)
				ordinal++
				if msg.ToolName != "" {
					toolsUsed = append(toolsUsed, msg.ToolName)
				}
			}
		}
	}

	if sessionID == "" {
		sessionID = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
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
		Source:           "claude_code",
		ProjectPath:      projectPath,
		ProjectName:      projectName,
		CWD:              cwd,
		Model:            model,
		GitBranch:        gitBranch,
		FirstMessageAt:   firstTS,
		LastMessageAt:    lastTS,
		MessageCount:     len(messages),
		UserMessageCount: userMsgCount,
		TotalTokens:      totalTokens,
		ToolsUsed:        toolsUsed,
		RawPath:          filePath,
		Title:            title,
		Messages:         messages,
	}, nil
}

func parseClaudeUserContent(content any, ordinal int, ts int64) []*ParsedMessage {
	var msgs []*ParsedMessage

	switch c := content.(type) {
	case string:
		if strings.TrimSpace(c) != "" {
			msgs = append(msgs, &ParsedMessage{
				Ordinal: ordinal, Role: "user", ContentType: "text",
				ContentText: c, CreatedAt: ts,
			})
		}
	case []any:
		for _, item := range c {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			itemType := getString(block, "type")

			switch itemType {
			case "text":
				text := getString(block, "text")
				if strings.TrimSpace(text) != "" {
					msgs = append(msgs, &ParsedMessage{
						Ordinal: ordinal + len(msgs), Role: "user", ContentType: "text",
						ContentText: text, CreatedAt: ts,
					})
				}
			case "tool_result":
				resultContent := block["content"]
				text := resultContentToText(resultContent)
				msgs = append(msgs, &ParsedMessage{
					Ordinal: ordinal + len(msgs), Role: "tool", ContentType: "tool_result",
					ContentText: truncateDefault(text),
					ContentJSON: mustJSON(map[string]any{"tool_use_id": block["tool_use_id"]}),
					CreatedAt:   ts,
				})
			}
		}
	}
	return msgs
}

func resultContentToText(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, b := range c {
			block, ok := b.(map[string]any)
			if !ok {
				continue
			}
			if getString(block, "type") == "text" {
				parts = append(parts, getString(block, "text"))
			}
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parseClaudeAssistantContent(content any, ordinal int, ts int64) []*ParsedMessage {
	var msgs []*ParsedMessage

	switch c := content.(type) {
	case string:
		if strings.TrimSpace(c) != "" {
			msgs = append(msgs, &ParsedMessage{
				Ordinal: ordinal, Role: "assistant", ContentType: "text",
				ContentText: c, CreatedAt: ts,
			})
		}
	case []any:
		for _, item := range c {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			itemType := getString(block, "type")

			switch itemType {
			case "text":
				text := getString(block, "text")
				if strings.TrimSpace(text) != "" {
					msgs = append(msgs, &ParsedMessage{
						Ordinal: ordinal + len(msgs), Role: "assistant", ContentType: "text",
						ContentText: text, CreatedAt: ts,
					})
				}
			case "thinking":
				text := getString(block, "thinking")
				if strings.TrimSpace(text) != "" {
					msgs = append(msgs, &ParsedMessage{
						Ordinal: ordinal + len(msgs), Role: "assistant", ContentType: "thinking",
						ContentText: truncate(text, 1000), CreatedAt: ts,
					})
				}
			case "tool_use":
				name := getString(block, "name")
				inp := block["input"]
				inpJSON := mustJSON(inp)
				msgs = append(msgs, &ParsedMessage{
					Ordinal: ordinal + len(msgs), Role: "assistant", ContentType: "tool_call",
					ContentText: truncate(inpJSON, 500),
					ContentJSON: mustJSON(map[string]any{
						"id": block["id"], "name": name, "input": truncate(inpJSON, 1000),
					}),
					ToolName:  name,
					CreatedAt: ts,
				})
			}
		}
	}
	return msgs
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
