package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tactical/internal/model"
	"tactical/internal/promote"
	"tactical/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memory.sqlite")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, s *store.Store, id, projectPath string, firstMessageAt int64, text string) {
	t.Helper()
	require.NoError(t, s.UpsertSession(&model.Session{
		ID: id, Source: "claude_code", ProjectPath: projectPath, ProjectName: "proj",
		Tier: model.TierL3, Title: "session " + id, FirstMessageAt: firstMessageAt, LastMessageAt: firstMessageAt + 60,
		MessageCount: 4, UserMessageCount: 2,
	}))
	require.NoError(t, s.InsertMessages([]*model.Message{
		{SessionID: id, Ordinal: 0, Role: "user", ContentType: "text", ContentText: text, CreatedAt: firstMessageAt},
		{SessionID: id, Ordinal: 1, Role: "assistant", ContentType: "text", ContentText: "working on it", CreatedAt: firstMessageAt + 10},
	}))
}

func TestSearchReturnsRankedResults(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess-1", "/home/user/proj", 1000, "investigate the failing retry loop")
	svc := New(s, nil, promote.New(s, nil), 2000)

	results, err := svc.Search(context.Background(), "retry loop", 10, "", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sess-1", results[0].SessionID)
}

func TestTimelineOrdersOldestFirst(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess-old", "/p", 1000, "old work")
	seedSession(t, s, "sess-new", "/p", 5000, "new work")
	svc := New(s, nil, promote.New(s, nil), 2000)

	entries, err := svc.Timeline(context.Background(), "/p", 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sess-old", entries[0].SessionID)
	assert.Equal(t, "sess-new", entries[1].SessionID)
}

func TestProjectContextCombinesL1AndRecentSummaries(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess-1", "/home/user/proj", 1000, "fixed the auth bug")
	require.NoError(t, s.UpsertSummary(&model.Summary{SessionID: "sess-1", SummaryText: "fixed the auth bug in login flow", GeneratedAt: 1000}))
	_, err := s.UpsertProjectKnowledge(&model.ProjectKnowledge{
		ProjectPath: "/home/user/proj", KnowledgeType: "pattern", Content: "use JWT for auth", Confidence: 0.9,
		EvidenceCount: 2, FirstSeenAt: 1, LastConfirmedAt: 1,
	})
	require.NoError(t, err)

	svc := New(s, nil, promote.New(s, nil), 2000)
	ctx, err := svc.ProjectContext(context.Background(), "/home/user/proj")
	require.NoError(t, err)
	assert.Contains(t, ctx.L1Context, "use JWT for auth")
	require.Len(t, ctx.RecentSummaries, 1)
	assert.Equal(t, "sess-1", ctx.RecentSummaries[0].SessionID)
}

func TestProjectContextEmptyForUnknownProject(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, nil, promote.New(s, nil), 2000)

	ctx, err := svc.ProjectContext(context.Background(), "/nonexistent")
	require.NoError(t, err)
	assert.Empty(t, ctx.L1Context)
	assert.Empty(t, ctx.RecentSummaries)
}

func TestRecallSessionReturnsFullDetail(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess-1", "/p", 1000, "fix the bug")
	require.NoError(t, s.UpsertSummary(&model.Summary{SessionID: "sess-1", SummaryText: "fixed it", KeyDecisions: []string{"used a mutex"}, GeneratedAt: 1000}))

	svc := New(s, nil, promote.New(s, nil), 2000)
	recalled, err := svc.RecallSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, recalled)
	assert.Equal(t, "sess-1", recalled.Session.ID)
	require.NotNil(t, recalled.Summary)
	assert.Equal(t, "fixed it", recalled.Summary.SummaryText)
	assert.Len(t, recalled.Messages, 2)
	assert.Equal(t, 2, recalled.TotalMessages)
	assert.False(t, recalled.Truncated)
}

func TestRecallSessionTruncatesToFirst100Messages(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertSession(&model.Session{ID: "sess-long", Source: "claude_code", Tier: model.TierL3}))
	var msgs []*model.Message
	for i := 0; i < 150; i++ {
		msgs = append(msgs, &model.Message{SessionID: "sess-long", Ordinal: i, Role: "user", ContentType: "text", ContentText: "msg", CreatedAt: int64(i)})
	}
	require.NoError(t, s.InsertMessages(msgs))

	svc := New(s, nil, promote.New(s, nil), 2000)
	recalled, err := svc.RecallSession(context.Background(), "sess-long")
	require.NoError(t, err)
	assert.Len(t, recalled.Messages, 100)
	assert.Equal(t, 150, recalled.TotalMessages)
	assert.True(t, recalled.Truncated)
}

func TestRecallSessionReturnsNilForMissingSession(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, nil, promote.New(s, nil), 2000)

	recalled, err := svc.RecallSession(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, recalled)
}

func TestParseDateFilter(t *testing.T) {
	epoch, ok := ParseDateFilter("2026-02-01")
	assert.True(t, ok)
	assert.Greater(t, epoch, int64(0))

	_, ok = ParseDateFilter("not-a-date")
	assert.False(t, ok)

	_, ok = ParseDateFilter("")
	assert.False(t, ok)
}
