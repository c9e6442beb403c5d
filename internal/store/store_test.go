package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tactical/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memory.sqlite")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) *model.Session {
	return &model.Session{
		ID:               id,
		Source:           "claude_code",
		ProjectPath:      "/home/user/proj",
		ProjectName:      "proj",
		CWD:              "/home/user/proj",
		Model:            "claude-sonnet",
		FirstMessageAt:   1000,
		LastMessageAt:    2000,
		MessageCount:     4,
		UserMessageCount: 2,
		TotalTokens:      500,
		ToolsUsed:        []string{"Bash", "Read"},
		RawPath:          "/transcripts/" + id + ".jsonl",
		IngestedAt:       3000,
		Title:            "fix the bug",
		Tier:             model.TierL3,
	}
}

func TestUpsertAndGetSession(t *testing.T) {
	s := newTestStore(t)
	sess := testSession("sess-1")
	require.NoError(t, s.UpsertSession(sess))

	got, err := s.GetSession("sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ProjectName, got.ProjectName)
	assert.Equal(t, []string{"Bash", "Read"}, got.ToolsUsed)
	assert.Equal(t, model.TierL3, got.Tier)

	exists, err := s.SessionExists("sess-1")
	require.NoError(t, err)
	assert.True(t, exists)

	missing, err := s.GetSession("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertSessionUpdatesMutableFieldsOnly(t *testing.T) {
	s := newTestStore(t)
	sess := testSession("sess-1")
	require.NoError(t, s.UpsertSession(sess))

	sess.MessageCount = 10
	sess.TotalTokens = 900
	sess.Title = "updated title"
	sess.Source = "codex" // immutable in practice; update path doesn't touch it
	require.NoError(t, s.UpsertSession(sess))

	got, err := s.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.MessageCount)
	assert.Equal(t, 900, got.TotalTokens)
	assert.Equal(t, "updated title", got.Title)
	assert.Equal(t, "claude_code", got.Source, "source is set only at insert time")
}

func TestInsertMessagesIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	sess := testSession("sess-1")
	require.NoError(t, s.UpsertSession(sess))

	msgs := []*model.Message{
		{SessionID: "sess-1", Ordinal: 0, Role: "user", ContentText: "hello", CreatedAt: 1000},
		{SessionID: "sess-1", Ordinal: 1, Role: "assistant", ContentText: "hi there", CreatedAt: 1001},
	}
	require.NoError(t, s.InsertMessages(msgs))
	require.NoError(t, s.InsertMessages(msgs)) // re-ingest: no duplicates

	got, err := s.GetSessionMessages("sess-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].ContentText)
	assert.Equal(t, "hi there", got[1].ContentText)
}

func TestSearchFTSFindsIndexedContent(t *testing.T) {
	s := newTestStore(t)
	sess := testSession("sess-1")
	require.NoError(t, s.UpsertSession(sess))
	require.NoError(t, s.InsertMessages([]*model.Message{
		{SessionID: "sess-1", Ordinal: 0, Role: "user", ContentText: "how do I configure the o3-mini backend", CreatedAt: 1000},
		{SessionID: "sess-1", Ordinal: 1, Role: "assistant", ContentText: "unrelated text about gardening", CreatedAt: 1001},
	}))

	hits, err := s.SearchFTS("o3-mini backend", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sess-1", hits[0].SessionID)
	assert.Equal(t, "proj", hits[0].ProjectName)
}

func TestSearchFTSEscapesSpecialCharacters(t *testing.T) {
	assert.Equal(t, `"2025-12"`, escapeFTS5("2025-12"))
	assert.Equal(t, `"o3-mini" "foo"`, escapeFTS5("o3-mini foo"))
	assert.Equal(t, ``, escapeFTS5(""))
	assert.Equal(t, `"she said ""hi"""`, escapeFTS5(`she said "hi"`))
}

func TestSummaryUpsertPromotesToL2AndDeleteReverts(t *testing.T) {
	s := newTestStore(t)
	sess := testSession("sess-1")
	require.NoError(t, s.UpsertSession(sess))

	sum := &model.Summary{
		SessionID:      "sess-1",
		SummaryText:    "fixed the auth bug",
		KeyDecisions:   []string{"use JWT"},
		FilesTouched:   []string{"auth.go"},
		GeneratedAt:    5000,
		GeneratorModel: "haiku",
	}
	require.NoError(t, s.UpsertSummary(sum))

	got, err := s.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.TierL2, got.Tier)

	storedSum, err := s.GetSummary("sess-1")
	require.NoError(t, err)
	require.NotNil(t, storedSum)
	assert.Equal(t, []string{"use JWT"}, storedSum.KeyDecisions)

	deleted, err := s.DeleteSummary("sess-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err = s.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.TierL3, got.Tier)
}

func TestGetUnsummarizedSessionsRespectsMinUserMessages(t *testing.T) {
	s := newTestStore(t)
	low := testSession("low")
	low.UserMessageCount = 1
	high := testSession("high")
	high.UserMessageCount = 5
	require.NoError(t, s.UpsertSession(low))
	require.NoError(t, s.UpsertSession(high))

	got, err := s.GetUnsummarizedSessions(3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "high", got[0].ID)
}

func TestEntityUpsertAccumulatesOccurrences(t *testing.T) {
	s := newTestStore(t)
	sess := testSession("sess-1")
	require.NoError(t, s.UpsertSession(sess))
	require.NoError(t, s.InsertMessages([]*model.Message{
		{SessionID: "sess-1", Ordinal: 0, Role: "user", ContentText: "check main.go", CreatedAt: 1000},
	}))

	id1, err := s.UpsertEntity("file_path", "main.go", 1000)
	require.NoError(t, err)
	id2, err := s.UpsertEntity("file_path", "main.go", 2000)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var occurrences int
	var lastSeen int64
	require.NoError(t, s.db.QueryRow(
		"SELECT occurrence_count, last_seen_at FROM entities WHERE id = ?", id1,
	).Scan(&occurrences, &lastSeen))
	assert.Equal(t, 2, occurrences)
	assert.Equal(t, int64(2000), lastSeen)
}

func TestProjectKnowledgeLifecycle(t *testing.T) {
	s := newTestStore(t)
	entry := &model.ProjectKnowledge{
		ProjectPath:     "/home/user/proj",
		KnowledgeType:   "preference",
		Content:         "uses tabs not spaces",
		Confidence:      0.6,
		EvidenceCount:   1,
		SourceSessions:  []string{"sess-1"},
		FirstSeenAt:     1000,
		LastConfirmedAt: 1000,
	}
	id, err := s.UpsertProjectKnowledge(entry)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	confidence := 0.9
	require.NoError(t, s.ConfirmKnowledge(id, 2000, &confidence))

	entries, err := s.GetProjectKnowledge("/home/user/proj")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].EvidenceCount)
	assert.Equal(t, 0.9, entries[0].Confidence)

	n, err := s.ClearProjectKnowledge("/home/user/proj")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClaimJobIsAtomic(t *testing.T) {
	s := newTestStore(t)
	_, err := s.EnqueueJob("summarize", "sess-1", 0, 1000)
	require.NoError(t, err)

	job, err := s.ClaimJob(1001)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "summarize", job.JobType)

	again, err := s.ClaimJob(1002)
	require.NoError(t, err)
	assert.Nil(t, again, "no pending jobs left")

	require.NoError(t, s.FinishJob(job.ID, 1003, ""))
}

func TestDeleteProjectDataRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	sess := testSession("sess-1")
	require.NoError(t, s.UpsertSession(sess))
	require.NoError(t, s.InsertMessages([]*model.Message{
		{SessionID: "sess-1", Ordinal: 0, Role: "user", ContentText: "hi", CreatedAt: 1000},
	}))
	require.NoError(t, s.UpsertSummary(&model.Summary{SessionID: "sess-1", SummaryText: "x", GeneratedAt: 1000}))
	_, err := s.UpsertProjectKnowledge(&model.ProjectKnowledge{
		ProjectPath: "/home/user/proj", KnowledgeType: "pattern", Content: "x",
	})
	require.NoError(t, err)

	counts, err := s.DeleteProjectData("/home/user/proj")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Sessions)
	assert.Equal(t, 1, counts.Summaries)
	assert.Equal(t, 1, counts.Messages)
	assert.Equal(t, 1, counts.Knowledge)

	got, err := s.GetSession("sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertSession(testSession("sess-1")))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalSessions)
	assert.Equal(t, 1, st.SessionsBySource["claude_code"])
	assert.Equal(t, 1, st.SessionsByTier["L3"])
}
