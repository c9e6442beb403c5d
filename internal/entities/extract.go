// Package entities extracts regex-recognized terms (file paths, functions,
// error types, packages, commands) from message text and persists them as
// store.Entity rows linked to the message they were found in.
package entities

import (
	"regexp"
	"strings"

	"tactical/internal/logging"
	"tactical/internal/store"
)

// patterns maps an entity type to the regex that recognizes it. Each pattern
// has exactly one capture group: the canonical value to record.
var patterns = map[string]*regexp.Regexp{
	"file_path": regexp.MustCompile(`(?m)(?:^|[\s"` + "`" + `'(])(/[\w./\-]+\.\w{1,10})`),
	"function":  regexp.MustCompile(`(?m)(?:fn |def |function |class |async def )\s*(\w+)`),
	// Named-keyword alternation followed by a suffix-only wildcard, per
	// original_source/src/entities.py — not a prefix wildcard, despite the
	// abstract description reading as though one applied.
	"error_type": regexp.MustCompile(`(?m)((?:Error|Exception|Panic|FAIL|TypeError|ValueError|KeyError|RuntimeError|` +
		`ImportError|ModuleNotFoundError|FileNotFoundError|PermissionError|` +
		`SyntaxError|AttributeError|NameError|IndexError|OSError)[\w:]*)`),
	"package": regexp.MustCompile(`(?m)(?:import |from |require\(['"]|use )(\w[\w./\-]*)`),
	"command": regexp.MustCompile(`(?m)(?:^\$ |^> )\s*(\w[\w\-]+ [^\n]{0,80})`),
}

// Entity types are iterated in this fixed order so extraction is
// deterministic regardless of Go's randomized map iteration.
var patternOrder = []string{"file_path", "function", "error_type", "package", "command"}

var ignoreValues = map[string]map[string]bool{
	"file_path": {"/dev/null": true, "/tmp": true, "/usr": true, "/bin": true, "/etc": true},
	"function":  {"self": true, "cls": true, "main": true, "test": true, "init": true, "new": true, "get": true, "set": true},
	"package":   {"os": true, "sys": true, "re": true, "json": true, "time": true, "typing": true, "io": true},
}

// Extracted is one entity match found in a piece of text.
type Extracted struct {
	EntityType string
	Value      string
	Context    string // ±50 chars around the match, newlines collapsed to spaces
}

// Extract finds all entity matches in text, deduplicated within the call by
// (type, value).
func Extract(text string) []Extracted {
	var results []Extracted
	seen := make(map[[2]string]bool)

	for _, entityType := range patternOrder {
		pattern := patterns[entityType]
		ignore := ignoreValues[entityType]

		for _, match := range pattern.FindAllStringSubmatchIndex(text, -1) {
			valStart, valEnd := match[2], match[3]
			if valStart < 0 {
				continue
			}
			value := strings.TrimSpace(text[valStart:valEnd])
			if len([]rune(value)) < 2 {
				continue
			}
			if ignore[value] {
				continue
			}
			key := [2]string{entityType, value}
			if seen[key] {
				continue
			}
			seen[key] = true

			matchStart, matchEnd := match[0], match[1]
			start := matchStart - 50
			if start < 0 {
				start = 0
			}
			end := matchEnd + 50
			if end > len(text) {
				end = len(text)
			}
			context := strings.TrimSpace(strings.ReplaceAll(text[start:end], "\n", " "))

			results = append(results, Extracted{EntityType: entityType, Value: value, Context: context})
		}
	}
	return results
}

// ExtractForSession extracts entities from every user/assistant message of a
// session and records them in the store. Returns the number of entity
// occurrences recorded.
func ExtractForSession(s *store.Store, sessionID string) (int, error) {
	timer := logging.StartTimer(logging.CategoryEntities, "entities.ExtractForSession")
	defer timer.Stop()

	messages, err := s.GetSessionMessages(sessionID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, msg := range messages {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		if msg.ContentText == "" {
			continue
		}

		for _, ent := range Extract(msg.ContentText) {
			if err := s.RecordEntity(ent.EntityType, ent.Value, sessionID, msg.ID, ent.Context, msg.CreatedAt); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}
