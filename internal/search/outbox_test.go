package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxOutboxAttempts(t *testing.T) {
	assert.Equal(t, 10, maxOutboxAttempts)
}

func TestSnapshotForIndexFields(t *testing.T) {
	// Unit-level sanity check that SnapshotForIndex carries the fields
	// processUpserts copies into a Qdrant point; the full poll → process →
	// Qdrant flow is not exercised by these tests.
	var s SnapshotForIndex
	_ = s.ID
	_ = s.ProjectPath
	_ = s.Trigger
	_ = s.Timestamp
	_ = s.Embedding
}

func TestResultFields(t *testing.T) {
	var r Result
	_ = r.SnapshotID
	_ = r.Score
}
