package orchestrate

import (
	"regexp"
	"strings"

	"tactical/internal/model"
	"tactical/internal/store"
)

const (
	defaultMinUserMessages = 3
	minMessageCount        = 5
	minSessionSpanSeconds  = 60
)

// syntheticPreambleMarkers are the IDE/tool-injected prefixes that identify a
// user-role message as not real human input.
var syntheticPreambleMarkers = []string{
	"# AGENTS.md",
	"<environment_context>",
	"# Context from my IDE",
	"<INSTRUCTIONS>",
	"<permissions",
	"Read the file /var/folders",
	"Read the file /tmp",
}

func isSyntheticPreamble(text string) bool {
	for _, marker := range syntheticPreambleMarkers {
		if strings.HasPrefix(strings.TrimSpace(text), marker) {
			return true
		}
	}
	return false
}

var (
	singleWordTitle       = regexp.MustCompile(`^\S+$`)
	singleWordYesNoTitle  = regexp.MustCompile(`(?i)^(yes|no|ok|okay|sure|thanks|continue)$`)
	genericAssistantTitle = regexp.MustCompile(`(?i)^You are:`)
	interruptedTitle      = regexp.MustCompile(`^\[Request interrupted`)
)

func looksLikePurePath(title string) bool {
	t := strings.TrimSpace(title)
	return t != "" && (strings.HasPrefix(t, "/") || strings.HasPrefix(t, "./") || strings.HasPrefix(t, "~/"))
}

func hasExcludedTitle(title string) bool {
	t := strings.TrimSpace(title)
	if t == "" {
		return false
	}
	if looksLikePurePath(t) {
		return true
	}
	if singleWordYesNoTitle.MatchString(t) {
		return true
	}
	if singleWordTitle.MatchString(t) {
		return true
	}
	if genericAssistantTitle.MatchString(t) {
		return true
	}
	if interruptedTitle.MatchString(t) {
		return true
	}
	return false
}

// passesQualityFilter decides whether sess is signal-rich enough to justify
// the LLM cost of summarization/promotion.
func passesQualityFilter(s *store.Store, sess *model.Session, minUserMessages int) (bool, error) {
	if sess.UserMessageCount < minUserMessages {
		return false, nil
	}
	if sess.MessageCount < minMessageCount {
		return false, nil
	}
	if sess.LastMessageAt-sess.FirstMessageAt < minSessionSpanSeconds {
		return false, nil
	}
	if hasExcludedTitle(sess.Title) {
		return false, nil
	}

	messages, err := s.GetSessionMessages(sess.ID)
	if err != nil {
		return false, err
	}
	realUserTurns := 0
	for _, m := range messages {
		if m.Role != "user" || m.ContentType != "text" {
			continue
		}
		if isSyntheticPreamble(m.ContentText) {
			continue
		}
		realUserTurns++
		if realUserTurns >= 2 {
			return true, nil
		}
	}
	return false, nil
}
