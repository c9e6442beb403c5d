// Package model holds the uniform records shared by the parsers, the store,
// and the consolidation pipeline.
package model

// Tier is a Session's retention tier.
type Tier string

const (
	TierL3 Tier = "L3" // raw messages + metadata
	TierL2 Tier = "L2" // per-session summary exists
)

// Session is a normalized conversation with a coding assistant, keyed by a
// vendor-assigned id.
type Session struct {
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
	IngestedAt       int64
	Title            string
	Tier             Tier
}

// Message is an ordered child of a Session, unique on (SessionID, Ordinal).
type Message struct {
	ID          int64
	SessionID   string
	Ordinal     int
	Role        string // user | assistant | system | tool
	ContentType string // text | tool_call | tool_result | thinking
	ContentText string
	ContentJSON string
	ToolName    string
	TokenCount  int
	CreatedAt   int64
}

// Entity is a canonicalized term extracted from message text.
type Entity struct {
	ID              int64
	EntityType      string
	CanonicalValue  string
	FirstSeenAt     int64
	LastSeenAt      int64
	OccurrenceCount int
}

// EntityOccurrence links one Entity to one (Session, Message) with a context
// snippet.
type EntityOccurrence struct {
	ID        int64
	EntityID  int64
	SessionID string
	MessageID int64
	Context   string
	CreatedAt int64
}

// Summary is the L2 per-session consolidation: one row per session.
type Summary struct {
	SessionID       string
	SummaryText     string
	KeyDecisions    []string
	FilesTouched    []string
	CommandsRun     []string
	Outcome         string
	GeneratedAt     int64
	GeneratorModel  string
	Thinking        string
	Usage           string
	ClaudeSessionID string
}

// ProjectKnowledge is an L1 consolidated fact about a project.
type ProjectKnowledge struct {
	ID               int64
	ProjectPath      string
	KnowledgeType    string // pattern | preference | architecture | gotcha | workflow
	Content          string
	Confidence       float64
	EvidenceCount    int
	SourceSessions   []string
	FirstSeenAt      int64
	LastConfirmedAt  int64
	SupersededBy     *int64
}

// JobStatus is the lifecycle state of a queued background Job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Job is a row in the durable background work queue.
type Job struct {
	ID             int64
	JobType        string // extract_entities | summarize | promote
	TargetID       string
	Status         JobStatus
	Priority       int
	RetryRemaining int
	CreatedAt      int64
	StartedAt      int64
	FinishedAt     int64
	LastError      string
}

// SearchResult is a ranked Session returned by hybrid search.
type SearchResult struct {
	SessionID        string
	Score            float64
	Source           string
	ProjectName      string
	Title            string
	Summary          string
	FirstMessageAt   int64
	MatchingSnippets []string
}

// TimelineEntry is one chronological row returned by Timeline.
type TimelineEntry struct {
	SessionID        string
	Source           string
	ProjectName      string
	Title            string
	Model            string
	FirstMessageAt   int64
	LastMessageAt    int64
	MessageCount     int
	UserMessageCount int
	Tier             Tier
	Summary          string
}
