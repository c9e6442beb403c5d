// Package promote consolidates summarized sessions of one project into L1
// project knowledge, fuzzy-deduping new candidates against what's already
// recorded.
package promote

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tactical/internal/llm"
	"tactical/internal/logging"
	"tactical/internal/model"
	"tactical/internal/store"
)

const (
	minSummariesToPromote = 2
	confidenceThreshold   = 0.5
	jaccardConfirmThreshold = 0.7
	maxSourceSessionsStored = 10
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

const promotePromptTemplate = `You are analyzing multiple coding session summaries for the same project.
Extract stable patterns, preferences, architectural decisions, and gotchas.

Project: %s

Session summaries:
%s

Existing knowledge entries (if any):
%s

---

Return a JSON array of knowledge entries. Each entry should be a pattern that appears across
multiple sessions (not one-off observations). Types: pattern, preference, architecture, gotcha, workflow.

[
  {
    "knowledge_type": "pattern | preference | architecture | gotcha | workflow",
    "content": "Concise description of the knowledge entry",
    "confidence": 0.5
  },
  ...
]

Only include entries with confidence >= 0.5. Return empty array [] if nothing is stable enough.`

var bracketArray = regexp.MustCompile(`(?s)\[.*\]`)

// Promoter runs the L2-to-L1 consolidation stage.
type Promoter struct {
	store *store.Store
	llm   llm.LLMClient
}

// New returns a Promoter backed by s and client.
func New(s *store.Store, client llm.LLMClient) *Promoter {
	return &Promoter{store: s, llm: client}
}

// Result is the outcome of one PromoteProjectKnowledge call.
type Result struct {
	Entries   []*model.ProjectKnowledge
	Confirmed int
	New       int
}

// PromoteProjectKnowledge consolidates all summarized sessions of
// projectPath into L1 knowledge rows, deduping new LLM candidates against
// existing entries by word-level Jaccard similarity.
func (p *Promoter) PromoteProjectKnowledge(ctx context.Context, projectPath, modelOverride, backendOverride string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryPromote, "promote.PromoteProjectKnowledge")
	defer timer.Stop()

	sessions, err := p.store.ListSessions(store.ListSessionsFilter{ProjectPath: projectPath, Limit: 100})
	if err != nil {
		return nil, err
	}

	var summaryBlocks []string
	var sourceSessionIDs []string
	sourceCounts := map[string]int{}
	var sourceOrder []string

	for _, sess := range sessions {
		sum, err := p.store.GetSummary(sess.ID)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			continue
		}
		title := sess.Title
		if title == "" {
			title = "untitled"
		}
		summaryBlocks = append(summaryBlocks, fmt.Sprintf("Session %s (%s):\n%s\nDecisions: %s\n",
			sess.ID, title, sum.SummaryText, mustJSON(sum.KeyDecisions)))
		sourceSessionIDs = append(sourceSessionIDs, sess.ID)

		if _, seen := sourceCounts[sess.Source]; !seen {
			sourceOrder = append(sourceOrder, sess.Source)
		}
		sourceCounts[sess.Source]++
	}

	if len(summaryBlocks) < minSummariesToPromote {
		return &Result{}, nil
	}

	existing, err := p.store.GetProjectKnowledge(projectPath)
	if err != nil {
		return nil, err
	}
	existingText := "None yet."
	if len(existing) > 0 {
		var lines []string
		for _, e := range existing {
			lines = append(lines, fmt.Sprintf("- [%s] %s (confidence: %v)", e.KnowledgeType, e.Content, e.Confidence))
		}
		existingText = strings.Join(lines, "\n")
	}

	prompt := fmt.Sprintf(promotePromptTemplate, projectPath, strings.Join(summaryBlocks, "\n---\n"), existingText)

	dominantSource := dominantBy(sourceOrder, sourceCounts)
	text, err := p.llm.Call(ctx, prompt, llm.CallOptions{
		Source:  dominantSource,
		Model:   modelOverride,
		Backend: llm.Backend(backendOverride),
	})
	if err != nil {
		return nil, err
	}

	candidates, ok := parseJSONArray(text)
	if !ok {
		return &Result{}, nil
	}

	now := nowFunc().Unix()
	if len(sourceSessionIDs) > maxSourceSessionsStored {
		sourceSessionIDs = sourceSessionIDs[:maxSourceSessionsStored]
	}

	result := &Result{}
	for _, raw := range candidates {
		cand, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		confidence := floatField(cand, "confidence", 0.5)
		if confidence < confidenceThreshold {
			continue
		}
		content := stringField(cand, "content")
		if content == "" {
			continue
		}
		knowledgeType := stringField(cand, "knowledge_type")
		if knowledgeType == "" {
			knowledgeType = "pattern"
		}

		match := findSimilar(content, existing)
		if match != nil {
			confirmedConfidence := confidence
			if err := p.store.ConfirmKnowledge(match.ID, now, &confirmedConfidence); err != nil {
				return nil, err
			}
			if confirmedConfidence > match.Confidence {
				match.Confidence = confirmedConfidence
			}
			match.EvidenceCount++
			match.LastConfirmedAt = now
			result.Entries = append(result.Entries, match)
			result.Confirmed++
			continue
		}

		entry := &model.ProjectKnowledge{
			ProjectPath:     projectPath,
			KnowledgeType:   knowledgeType,
			Content:         content,
			Confidence:      confidence,
			EvidenceCount:   1,
			SourceSessions:  sourceSessionIDs,
			FirstSeenAt:     now,
			LastConfirmedAt: now,
		}
		id, err := p.store.UpsertProjectKnowledge(entry)
		if err != nil {
			return nil, err
		}
		entry.ID = id
		existing = append(existing, entry)
		result.Entries = append(result.Entries, entry)
		result.New++
	}

	return result, nil
}

// SelectL1Context renders the highest-confidence knowledge entries of a
// project as a markdown block, stopping before exceeding budgetTokens under
// a ~4-chars-per-token estimate.
func (p *Promoter) SelectL1Context(projectPath string, budgetTokens int) (string, error) {
	entries, err := p.store.GetProjectKnowledge(projectPath)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	lines := []string{"## Project Knowledge (from previous sessions)\n"}
	estimatedTokens := 10

	for _, e := range entries {
		line := fmt.Sprintf("- **[%s]** %s", e.KnowledgeType, e.Content)
		lineTokens := len(line) / 4
		if estimatedTokens+lineTokens > budgetTokens {
			break
		}
		lines = append(lines, line)
		estimatedTokens += lineTokens
	}
	return strings.Join(lines, "\n"), nil
}

func dominantBy(order []string, counts map[string]int) string {
	best := ""
	bestCount := -1
	for _, s := range order {
		if counts[s] > bestCount {
			best = s
			bestCount = counts[s]
		}
	}
	return best
}

func parseJSONArray(text string) ([]any, bool) {
	var arr []any
	if err := json.Unmarshal([]byte(text), &arr); err == nil {
		return arr, true
	}
	if m := bracketArray.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &arr); err == nil {
			return arr, true
		}
	}
	return nil, false
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string, def float64) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return def
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// findSimilar returns the existing entry whose content has word-level
// Jaccard similarity >= jaccardConfirmThreshold with content, or nil.
func findSimilar(content string, existing []*model.ProjectKnowledge) *model.ProjectKnowledge {
	candidateWords := wordSet(content)
	if len(candidateWords) == 0 {
		return nil
	}

	var best *model.ProjectKnowledge
	bestScore := 0.0
	for _, e := range existing {
		score := jaccard(candidateWords, wordSet(e.Content))
		if score >= jaccardConfirmThreshold && score > bestScore {
			best = e
			bestScore = score
		}
	}
	return best
}

var punctuationStripper = regexp.MustCompile(`[^\w\s]`)

func wordSet(text string) map[string]bool {
	cleaned := punctuationStripper.ReplaceAllString(strings.ToLower(text), "")
	words := strings.Fields(cleaned)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
