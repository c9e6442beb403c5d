package parse

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// GeminiParser parses Gemini CLI session JSON files, stored under
// ~/.gemini/tmp/{projectHash}/chats/session-*.json. Each file is a single
// JSON object: {sessionId, projectHash, startTime, lastUpdated, messages[]}.
// Message types: user, gemini, info.
type GeminiParser struct {
	home       string
	hashToPath map[string]string
	loaded     bool
}

// NewGeminiParser returns a GeminiParser that reverses project-path hashes
// using ~/.gemini/trustedFolders.json under home.
func NewGeminiParser(home string) *GeminiParser {
	return &GeminiParser{home: home}
}

func (p *GeminiParser) hashMap() map[string]string {
	if p.loaded {
		return p.hashToPath
	}
	p.loaded = true
	p.hashToPath = map[string]string{}

	tfPath := filepath.Join(p.home, ".gemini", "trustedFolders.json")
	data, err := os.ReadFile(tfPath)
	if err != nil {
		return p.hashToPath
	}
	var folders map[string]any
	if err := json.Unmarshal(data, &folders); err != nil {
		return p.hashToPath
	}
	for folderPath := range folders {
		sum := sha256.Sum256([]byte(folderPath))
		p.hashToPath[hex.EncodeToString(sum[:])] = folderPath
	}
	return p.hashToPath
}

// DiscoverFiles recursively finds every session-*.json file beneath each
// base path.
func (p *GeminiParser) DiscoverFiles(basePaths []string) ([]string, error) {
	var files []string
	for _, base := range basePaths {
		if _, err := os.Stat(base); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasPrefix(d.Name(), "session-") && strings.HasSuffix(d.Name(), ".json") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk gemini base path %s: %w", base, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Parse reads a Gemini transcript and normalizes it.
func (p *GeminiParser) Parse(filePath string) (*ParsedSession, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read gemini transcript %s: %w", filePath, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil
	}

	sessionID := getString(doc, "sessionId")
	if sessionID == "" {
		sessionID = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	projectHash := getString(doc, "projectHash")
	startTime := getString(doc, "startTime")
	lastUpdated := getString(doc, "lastUpdated")
	rawMessages := getSlice(doc, "messages")
	if len(rawMessages) == 0 {
		return nil, nil
	}

	hashMap := p.hashMap()
	projectPath := hashMap[projectHash]
	projectName := projectHash
	if len(projectName) > 12 {
		projectName = projectName[:12]
	}
	if projectPath != "" {
		projectName = filepath.Base(projectPath)
	}

	firstTS := isoToEpoch(startTime)
	lastTS := isoToEpoch(lastUpdated)

	var messages []*ParsedMessage
	var ordinal int
	var userMsgCount, totalTokens int
	var toolsUsed []string
	var model, title string

	for _, raw := range rawMessages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		msgType := getString(msg, "type")
		ts := isoToEpoch(getString(msg, "timestamp"))

		switch msgType {
		case "user":
			text := extractGeminiUserText(msg)
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

		case "gemini":
			if model == "" {
				model = getString(msg, "model")
			}
			if tokens := getMap(msg, "tokens"); tokens != nil {
				totalTokens += int(getFloat(tokens, "total"))
			}

			for _, raw := range getSlice(msg, "thoughts") {
				thought, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				desc := getString(thought, "description")
				subject := getString(thought, "subject")
				thoughtText := desc
				if subject != "" {
					thoughtText = subject + ": " + desc
				}
				if thoughtText != "" {
					messages = append(messages, &ParsedMessage{
						Ordinal: ordinal, Role: "assistant", ContentType: "thinking",
						ContentText: truncate(thoughtText, 1000), CreatedAt: ts,
					})
					ordinal++
				}
			}

			for _, raw := range getSlice(msg, "toolCalls") {
				tc, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				toolName := getString(tc, "name")
				args := tc["args"]
				result := tc["result"]
				if toolName == "" {
					continue
				}
				toolsUsed = append(toolsUsed, toolName)
				argsJSON := mustJSON(args)
				messages = append(messages, &ParsedMessage{
					Ordinal: ordinal, Role: "assistant", ContentType: "tool_call",
					ContentText: truncate(argsJSON, 500),
					ContentJSON: mustJSON(map[string]any{"name": toolName, "args": truncate(argsJSON, 1000), "status": tc["status"]}),
					ToolName:    toolName,
					CreatedAt:   ts,
				})
				ordinal++

				resultText, ok := result.(string)
				if !ok {
					resultText = mustJSON(result)
				}
				messages = append(messages, &ParsedMessage{
					Ordinal: ordinal, Role: "tool", ContentType: "tool_result",
					ContentText: truncateDefault(resultText), CreatedAt: ts,
				})
				ordinal++
			}

			if content, ok := msg["content"].(string); ok && strings.TrimSpace(content) != "" {
				messages = append(messages, &ParsedMessage{
					Ordinal: ordinal, Role: "assistant", ContentType: "text",
					ContentText: content, CreatedAt: ts,
				})
				ordinal++
			}

		case "info":
			text := extractGeminiInfoText(msg)
			if strings.TrimSpace(text) != "" {
				messages = append(messages, &ParsedMessage{
					Ordinal: ordinal, Role: "system", ContentType: "text",
					ContentText: text, CreatedAt: ts,
				})
				ordinal++
			}
		}
	}

	if firstTS == 0 {
		firstTS = fileModTime(filePath)
	}
	if lastTS == 0 {
		lastTS = firstTS
	}

	return &ParsedSession{
		ID:               sessionID,
		Source:           "gemini",
		ProjectPath:      projectPath,
		ProjectName:      projectName,
		CWD:              projectPath,
		Model:            model,
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

func extractGeminiUserText(msg map[string]any) string {
	content := msg["content"]
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, item := range c {
			switch v := item.(type) {
			case map[string]any:
				if t := getString(v, "text"); t != "" {
					parts = append(parts, t)
				}
			case string:
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func extractGeminiInfoText(msg map[string]any) string {
	content := msg["content"]
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, item := range c {
			if block, ok := item.(map[string]any); ok {
				parts = append(parts, getString(block, "text"))
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
