// Package model defines the persisted entities of the capture & retrieval
// engine: Snapshot, Agent-Work, Agent-Definition, and the derived read
// models built over them.
package model

import "time"

// Message is one role/content pair extracted from a conversation document
// or an agent transcript. It is the only shape the transcript reader and the
// summarizer agree on — tool-use and tool-result entries that don't resolve
// to this shape are dropped during extraction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered sequence of messages, resolvable either from an
// inline request payload or from a transcript file on disk.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// Snapshot is one captured conversation slice.
type Snapshot struct {
	ID             int64
	ProjectPath    string
	SessionID      *string
	TranscriptPath *string
	Timestamp      time.Time
	Trigger        string
	MessageCount   int
	RawContext     Conversation
	Summary        string
	Embedding      []float32 // exactly EmbeddingDimensions components, or nil
	Tags           []string
	MentionedFiles []string
	KeyDecisions   []string
	BugsFixed      []string
	GitHash        *string
	GitBranch      *string
	StorageBytes   int64
}

// UpsertAction reports whether a persist call inserted a new snapshot row
// or updated an existing one matched by session_id or transcript_path.
type UpsertAction string

const (
	ActionInserted UpsertAction = "inserted"
	ActionUpdated  UpsertAction = "updated"
)

// PersistResult is returned by Store.Persist.
type PersistResult struct {
	ID        int64
	Timestamp time.Time
	Action    UpsertAction
}

// ExtractedMetadata is the output of the Metadata Extractor.
type ExtractedMetadata struct {
	Tags         []string
	Files        []string
	Decisions    []string
	Bugs         []string
	GitHash      *string
	GitBranch    *string
	MessageCount int
}

// AgentWork is one execution of a sub-task delegated inside a parent
// conversation.
type AgentWork struct {
	ID               int64
	RequestID        string
	ParentSnapshotID *int64
	ParentSessionID  string
	AgentDefID       int64
	AgentInstanceID  string
	Task             string
	TranscriptPath   *string
	Messages         []Message
	ToolUsage        map[string]int
	FilesExamined    []string
	URLsFetched      []string
	ResultSummary    string
	Embedding        []float32
	StartedAt        time.Time
	EndedAt          time.Time
}

// Duration is derived from StartedAt/EndedAt, never stored directly.
func (w AgentWork) Duration() time.Duration {
	d := w.EndedAt.Sub(w.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// AgentDefinition is the reusable blueprint an agent-work instance ran with.
type AgentDefinition struct {
	ID                 int64
	AgentType          string
	Name               *string
	SystemPrompt       string
	Configuration      map[string]any
	Tools              []string
	Model              string
	Version            int
	ParentDefinitionID *int64
	Description        *string
	CreatedAt          time.Time
	CreatedBy          *string
	ConfigHash         string
}

// QualityRow is a snapshot's derived 0-10 quality score.
type QualityRow struct {
	SnapshotID int64
	Score      int
}

// QualityBuckets is the aggregate bucket breakdown accompanying a quality
// report: high >= 8, medium 5-7, low < 5.
type QualityBuckets struct {
	High   int
	Medium int
	Low    int
}

// ProjectStats is a per-project aggregate dashboard row.
type ProjectStats struct {
	ProjectPath     string
	SnapshotCount   int
	LastCapturedAt  time.Time
	AvgQualityScore float64
	TotalTags       int
	TotalFiles      int
}

// TimelineRow is one chronologically-ordered snapshot with trigger
// classification for the timeline view.
type TimelineRow struct {
	SnapshotID     int64
	ProjectPath    string
	Timestamp      time.Time
	Trigger        string
	TriggerClass   string
	Summary        string
	MessageCount   int
}

// BugRow is a flattened bug mention with category classification.
type BugRow struct {
	SnapshotID int64
	Text       string
	Category   string
}

// FileActivityRow is a file heatmap entry with type classification.
type FileActivityRow struct {
	File     string
	FileType string
	Mentions int
}

// DecisionRow is a flattened key-decision mention.
type DecisionRow struct {
	SnapshotID int64
	Text       string
	Timestamp  time.Time
}

// AgentPerformanceRow is a per-definition performance rollup.
type AgentPerformanceRow struct {
	AgentDefID       int64
	AgentType        string
	Version          int
	TimesUsed        int
	AvgDurationSec   float64
	AvgMessageCount  float64
	SuccessRate      float64
}

// AgentToolUsageRow is a per-type tool usage rollup.
type AgentToolUsageRow struct {
	AgentType string
	Tool      string
	Count     int
}

// AgentVersionComparisonRow compares a version's average duration against
// the version immediately preceding it.
type AgentVersionComparisonRow struct {
	AgentType          string
	Version            int
	AvgDurationSec     float64
	PrevAvgDurationSec float64
	PctChange          float64
}

// RawMessageHit is one substring match against a snapshot's raw conversation.
type RawMessageHit struct {
	SnapshotID int64
	Snippet    string
	Offset     int
}

// SystemStatus is the operational snapshot returned by the status read op:
// store reachability, queue pressure, and whether the optional ANN mirror
// is configured and healthy.
type SystemStatus struct {
	StoreReachable   bool
	PipelineQueueLen int
	SearchIndexUsed  bool
	SearchIndexOK    bool
}
