// Package rank implements hybrid (FTS + recency + importance) search over
// sessions and a chronological timeline view.
package rank

import (
	"math"
	"sort"
	"time"

	"tactical/internal/logging"
	"tactical/internal/model"
	"tactical/internal/store"
)

const (
	halfLifeDays  = 30.0
	ftsWeight     = 0.5
	recencyWeight = 0.25
	importanceWeight = 0.25
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

// RecencyScore is an exponential decay score based on age, with a 30-day
// half-life. Negative ages (clock skew, future timestamps) clamp to 0.
func RecencyScore(firstMessageAt int64) float64 {
	ageDays := nowFunc().Sub(time.Unix(firstMessageAt, 0)).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(2, -ageDays/halfLifeDays)
}

// ImportanceScore blends normalized message count, user message count, token
// total, and compaction count into a single 0-1 figure.
func ImportanceScore(sess *model.Session) float64 {
	msgFactor := min1(float64(sess.MessageCount) / 100)
	userFactor := min1(float64(sess.UserMessageCount) / 20)
	tokenFactor := min1(float64(sess.TotalTokens) / 200000)
	compactionFactor := min1(float64(sess.CompactionCount) / 5)

	return msgFactor*0.3 + userFactor*0.3 + tokenFactor*0.2 + compactionFactor*0.2
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// SearchFilter narrows HybridSearch.
type SearchFilter struct {
	ProjectPath string
	After       int64
	Limit       int
}

// HybridSearch finds messages matching query via FTS5, groups hits by
// session (keeping the best-scoring hit per session), then ranks sessions by
// fts_norm*0.5 + recency*0.25 + importance*0.25.
func HybridSearch(s *store.Store, query string, f SearchFilter) ([]*model.SearchResult, error) {
	timer := logging.StartTimer(logging.CategorySearch, "rank.HybridSearch")
	defer timer.Stop()

	hits, err := s.SearchFTS(query, 50)
	if err != nil {
		return nil, err
	}

	type sessionHit struct {
		rank    float64
		snippet string
	}
	bySession := make(map[string]*sessionHit)
	for _, h := range hits {
		rank := math.Abs(h.BM25)
		snippet := h.ContentText
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		cur, ok := bySession[h.SessionID]
		if !ok || rank > cur.rank {
			bySession[h.SessionID] = &sessionHit{rank: rank, snippet: snippet}
		}
	}
	if len(bySession) == 0 {
		return nil, nil
	}

	maxRank := 0.0
	for _, v := range bySession {
		if v.rank > maxRank {
			maxRank = v.rank
		}
	}
	if maxRank == 0 {
		maxRank = 1.0
	}

	var results []*model.SearchResult
	for sid, hit := range bySession {
		sess, err := s.GetSession(sid)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			continue
		}
		if f.ProjectPath != "" && sess.ProjectPath != f.ProjectPath {
			continue
		}
		if f.After > 0 && sess.FirstMessageAt < f.After {
			continue
		}

		ftsNorm := hit.rank / maxRank
		rec := RecencyScore(sess.FirstMessageAt)
		imp := ImportanceScore(sess)
		score := ftsNorm*ftsWeight + rec*recencyWeight + imp*importanceWeight

		var summaryText string
		if sum, err := s.GetSummary(sid); err != nil {
			return nil, err
		} else if sum != nil {
			summaryText = sum.SummaryText
		}

		results = append(results, &model.SearchResult{
			SessionID:        sid,
			Score:            score,
			Source:           sess.Source,
			ProjectName:      sess.ProjectName,
			Title:            sess.Title,
			Summary:          summaryText,
			FirstMessageAt:   sess.FirstMessageAt,
			MatchingSnippets: []string{hit.snippet},
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// TimelineFilter narrows Timeline.
type TimelineFilter struct {
	ProjectPath string
	After       int64
	Before      int64
	Limit       int
}

// Timeline returns sessions matching the filter in chronological order
// (oldest first), each carrying its L2 summary if one exists.
func Timeline(s *store.Store, f TimelineFilter) ([]*model.TimelineEntry, error) {
	sessions, err := s.ListSessions(store.ListSessionsFilter{
		ProjectPath: f.ProjectPath,
		After:       f.After,
		Before:      f.Before,
		Limit:       f.Limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*model.TimelineEntry, 0, len(sessions))
	for _, sess := range sessions {
		var summaryText string
		sum, err := s.GetSummary(sess.ID)
		if err != nil {
			return nil, err
		}
		if sum != nil {
			summaryText = sum.SummaryText
		}
		entries = append(entries, &model.TimelineEntry{
			SessionID:        sess.ID,
			Source:           sess.Source,
			ProjectName:      sess.ProjectName,
			Title:            sess.Title,
			Model:            sess.Model,
			FirstMessageAt:   sess.FirstMessageAt,
			LastMessageAt:    sess.LastMessageAt,
			MessageCount:     sess.MessageCount,
			UserMessageCount: sess.UserMessageCount,
			Tier:             sess.Tier,
			Summary:          summaryText,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].FirstMessageAt < entries[j].FirstMessageAt })
	return entries, nil
}
