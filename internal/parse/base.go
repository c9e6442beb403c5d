// Package parse normalizes per-vendor transcript files (Claude Code, Codex,
// Gemini) into the uniform ParsedSession/ParsedMessage shape the store
// ingests.
package parse

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const toolOutputTruncate = 500

// ParsedMessage is one normalized message awaiting a session id and a row id.
type ParsedMessage struct {
	Ordinal     int
	Role        string // user | assistant | system | tool
	ContentType string // text | tool_call | tool_result | thinking
	ContentText string
	ContentJSON string
	ToolName    string
	TokenCount  int
	CreatedAt   int64
}

// ParsedSession is one vendor transcript file, normalized.
type ParsedSession struct {
	ID               string
	Source           string // claude_code | codex | gemini
	ProjectPath      string
	ProjectName      string
	CWD              string
	Model            string
	GitBranch        string
	FirstMessageAt   int64
	LastMessageAt    int64
	MessageCount     int
	UserMessageCount int
	TotalTokens      int
	CompactionCount  int
	ToolsUsed        []string
	RawPath          string
	Title            string
	Messages         []*ParsedMessage
}

// SortedTools returns a deduplicated, sorted copy of ToolsUsed, matching the
// original's `json.dumps(sorted(set(tools_used)))` encoding.
func (p *ParsedSession) SortedTools() []string {
	seen := make(map[string]bool, len(p.ToolsUsed))
	var out []string
	for _, t := range p.ToolsUsed {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Parser discovers and parses a vendor's transcript files.
type Parser interface {
	DiscoverFiles(basePaths []string) ([]string, error)
	Parse(filePath string) (*ParsedSession, error)
}

// truncate shortens text to maxLen runes, appending an ellipsis marker.
// Matches the original's "…[truncated]" suffix.
func truncate(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + "…[truncated]"
}

func truncateDefault(text string) string {
	return truncate(text, toolOutputTruncate)
}

// isoToEpoch converts an ISO8601 timestamp (with or without a fractional
// second, with or without a trailing "Z" or "+HH:MM" offset) to unix epoch
// seconds. Returns 0 if the timestamp can't be parsed, same as the original.
func isoToEpoch(ts string) int64 {
	if ts == "" {
		return 0
	}
	trimmed := strings.TrimSuffix(ts, "Z")
	if idx := strings.Index(trimmed, "+"); idx != -1 {
		trimmed = trimmed[:idx]
	}

	layouts := []string{"2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC().Unix()
		}
	}
	return 0
}

var projectRootMarkers = map[string]bool{
	"Code": true, "Projects": true, "src": true, "repos": true, "workspace": true,
}

// inferProjectFromCwd derives project_path/project_name from a session's
// working directory, walking up to the first path component that looks like
// a projects root (Code/Projects/src/repos/workspace), else falling back to
// the last path component.
func inferProjectFromCwd(cwd, home string) (string, string) {
	if cwd == "" {
		return "", ""
	}
	clean := filepath.Clean(cwd)
	if clean == home || !strings.HasPrefix(clean, home) {
		return clean, filepath.Base(clean)
	}

	parts := splitPath(clean)
	for i, part := range parts {
		if projectRootMarkers[part] && i+1 < len(parts) {
			projectPath := joinPath(parts[:i+2])
			return projectPath, parts[i+1]
		}
	}
	return clean, filepath.Base(clean)
}

func splitPath(p string) []string {
	p = filepath.Clean(p)
	var parts []string
	for {
		dir, file := filepath.Split(p)
		dir = strings.TrimSuffix(dir, string(filepath.Separator))
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		if dir == "" || dir == p {
			if dir != "" {
				parts = append([]string{dir}, parts...)
			}
			break
		}
		p = dir
	}
	return parts
}

func joinPath(parts []string) string {
	if len(parts) == 0 {
		return string(filepath.Separator)
	}
	return string(filepath.Separator) + filepath.Join(parts...)
}

// readJSONL reads a JSONL file, skipping blank and malformed lines, same as
// the original's tolerant reader.
func readJSONL(filePath string) ([]map[string]any, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key]; ok {
		if mm, ok := v.(map[string]any); ok {
			return mm
		}
	}
	return nil
}

func getSlice(m map[string]any, key string) []any {
	if v, ok := m[key]; ok {
		if s, ok := v.([]any); ok {
			return s
		}
	}
	return nil
}

func getFloat(m map[string]any, key string) float64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func fileModTime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().Unix()
}
