// Package search maintains an optional Qdrant ANN mirror of the snapshot
// embeddings stored in Postgres. Postgres/pgvector remains the source of
// truth; Qdrant, when configured, is tried first for semantic search and
// the caller falls back to pgvector on any error.
package search

import "context"

// Result is one ranked hit from a Qdrant query.
type Result struct {
	SnapshotID int64
	Score      float32
}

// Searcher is the interface for vector search indexes over snapshots.
// *QdrantIndex implements it; callers hold a Searcher so retrieval can run
// against a nil index (Qdrant not configured) without a type assertion.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, projectPath string, limit int) ([]Result, error)
	Healthy(ctx context.Context) error
}
