package recall

import "time"

// Snapshot is the public representation of a captured conversation
// snapshot. It is a curated view of internal/model.Snapshot for use in
// extension interfaces — no internal package imports, safe to use from
// outside the module.
type Snapshot struct {
	ID             int64
	ProjectPath    string
	Trigger        string
	Timestamp      time.Time
	Summary        string
	Tags           []string
	MentionedFiles []string
	KeyDecisions   []string
	BugsFixed      []string
	MessageCount   int
	GitHash        string
	GitBranch      string
}

// SearchFilters mirrors the fields a Searcher implementation needs to
// narrow an ANN query. All fields are primitive types — no internal
// package imports.
type SearchFilters struct {
	ProjectPath string
}

// SearchResult holds a snapshot id and similarity score from a Searcher.
type SearchResult struct {
	SnapshotID int64
	Score      float32
}

// CaptureEvent is the public representation of an accepted capture,
// delivered to CaptureHook implementations after the pipeline persists it.
type CaptureEvent struct {
	SnapshotID  int64
	ProjectPath string
	Trigger     string
	Summary     string
	Tags        []string
}
