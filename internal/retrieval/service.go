// Package retrieval provides the shared business logic behind the
// Retrieval API. Both the HTTP handlers and the MCP tool surface delegate
// to this Service, so semantic search, the Qdrant-then-pgvector fallback
// chain, and every analytical read are implemented exactly once.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/recall-run/recall/internal/embedding"
	"github.com/recall-run/recall/internal/model"
	"github.com/recall-run/recall/internal/pipeline"
	"github.com/recall-run/recall/internal/search"
	"github.com/recall-run/recall/internal/storage"
	"github.com/recall-run/recall/internal/telemetry"
)

const defaultLimit = 10

// Service encapsulates retrieval business logic shared by HTTP and MCP
// handlers.
type Service struct {
	db       *storage.DB
	embedder embedding.Provider
	searcher search.Searcher // nil when Qdrant isn't configured
	coord    *pipeline.Coordinator
	logger   *slog.Logger

	embeddingDuration metric.Float64Histogram
	searchDuration    metric.Float64Histogram
}

// New creates a retrieval Service. searcher may be nil, in which case
// semantic search always runs directly against pgvector. coord may be nil
// for deployments that only expose reads (it is used solely for the
// system-status queue-depth figure).
func New(db *storage.DB, embedder embedding.Provider, searcher search.Searcher, coord *pipeline.Coordinator, logger *slog.Logger) *Service {
	meter := telemetry.Meter("recall/retrieval")
	embDur, _ := meter.Float64Histogram("recall.retrieval.embedding.duration",
		metric.WithDescription("Time to embed an ad-hoc query (ms)"),
		metric.WithUnit("ms"),
	)
	searchDur, _ := meter.Float64Histogram("recall.retrieval.search.duration",
		metric.WithDescription("Time to execute a search query (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{
		db:                db,
		embedder:          embedder,
		searcher:          searcher,
		coord:             coord,
		logger:            logger,
		embeddingDuration: embDur,
		searchDuration:    searchDur,
	}
}

func boundedLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// EmbedQuery embeds ad-hoc text for callers that want the raw vector
// (the Ingress embedding endpoint).
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := s.embedder.Embed(ctx, text)
	s.embeddingDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, model.Wrap(model.KindEmbedderUnavailable, "retrieval: embed query", err)
	}
	return vec, nil
}

// SearchMemory embeds query and runs semantic search, falling back to
// lexical ILIKE search when embedding fails. When a Qdrant searcher is
// configured and healthy, it is tried first for lower-latency ANN lookup;
// any Qdrant error falls through to the pgvector cosine search, never to
// the caller. When the pgvector search finds no row with a stored vector,
// lexical ILIKE search is used instead.
func (s *Service) SearchMemory(ctx context.Context, query, projectPath string, limit int) ([]model.Snapshot, error) {
	limit = boundedLimit(limit)

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	s.embeddingDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		s.logger.Warn("retrieval: search_memory embedding failed, falling back to lexical", "error", err)
		return s.db.LexicalSearch(ctx, query, projectPath, limit)
	}

	if s.searcher != nil {
		if herr := s.searcher.Healthy(ctx); herr == nil {
			searchStart := time.Now()
			results, serr := s.searcher.Search(ctx, vec, projectPath, limit)
			s.searchDuration.Record(ctx, float64(time.Since(searchStart).Milliseconds()))
			if serr == nil {
				return s.hydrate(ctx, results)
			}
			s.logger.Warn("retrieval: qdrant search failed, falling back to pgvector", "error", serr)
		} else {
			s.logger.Debug("retrieval: qdrant unhealthy, using pgvector", "error", herr)
		}
	}

	results, err := s.db.SemanticSearch(ctx, vec, projectPath, limit)
	if err == nil && len(results) == 0 {
		return s.db.LexicalSearch(ctx, query, projectPath, limit)
	}
	return results, err
}

func (s *Service) hydrate(ctx context.Context, results []search.Result) ([]model.Snapshot, error) {
	out := make([]model.Snapshot, 0, len(results))
	for _, r := range results {
		snap, err := s.db.GetSnapshot(ctx, r.SnapshotID)
		if err == model.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("retrieval: hydrate snapshot %d: %w", r.SnapshotID, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// SearchRawMessages scans raw conversation text for substring matches.
func (s *Service) SearchRawMessages(ctx context.Context, query, projectPath string, limit int) ([]model.RawMessageHit, error) {
	return s.db.RawMessageSearch(ctx, query, projectPath, boundedLimit(limit))
}

// SearchExactPhrase matches a literal phrase across assistant messages.
func (s *Service) SearchExactPhrase(ctx context.Context, phrase, projectPath string, limit int) ([]model.Snapshot, error) {
	return s.db.ExactPhraseSearch(ctx, phrase, projectPath, boundedLimit(limit))
}

// GetTimeline returns chronologically descending snapshot rows with
// trigger classification.
func (s *Service) GetTimeline(ctx context.Context, projectPath string, limit int) ([]model.TimelineRow, error) {
	return s.db.Timeline(ctx, projectPath, boundedLimit(limit))
}

// GetSnapshot returns the full record by id.
func (s *Service) GetSnapshot(ctx context.Context, id int64) (model.Snapshot, error) {
	return s.db.GetSnapshot(ctx, id)
}

// RecentSnapshots returns bounded recent captures for a project (or
// across all projects when projectPath is empty).
func (s *Service) RecentSnapshots(ctx context.Context, projectPath string, limit int) ([]model.Snapshot, error) {
	return s.db.RecentSnapshots(ctx, projectPath, boundedLimit(limit))
}

// GetQualityReport returns quality view rows at or above minScore plus the
// aggregate bucket breakdown.
func (s *Service) GetQualityReport(ctx context.Context, projectPath string, minScore, limit int) ([]model.QualityRow, model.QualityBuckets, error) {
	return s.db.QualityReport(ctx, projectPath, minScore, boundedLimit(limit))
}

// GetProjectStats returns the per-project dashboard rows.
func (s *Service) GetProjectStats(ctx context.Context, projectPath string) ([]model.ProjectStats, error) {
	return s.db.ProjectStats(ctx, projectPath)
}

// SearchDecisions returns flattened key-decision mentions containing
// keyword (or all, when keyword is empty).
func (s *Service) SearchDecisions(ctx context.Context, projectPath, keyword string, limit int) ([]model.DecisionRow, error) {
	return s.db.Decisions(ctx, projectPath, keyword, boundedLimit(limit))
}

// AnalyzeBugs returns flattened bug mentions, optionally filtered by
// category (crash, regression, data, performance, ui, other).
func (s *Service) AnalyzeBugs(ctx context.Context, projectPath, category string, limit int) ([]model.BugRow, error) {
	return s.db.Bugs(ctx, projectPath, category, boundedLimit(limit))
}

// GetFileActivity returns the file-mention heatmap, optionally filtered by
// file type and a minimum mention count.
func (s *Service) GetFileActivity(ctx context.Context, projectPath, fileType string, minMentions, limit int) ([]model.FileActivityRow, error) {
	return s.db.FileActivity(ctx, projectPath, fileType, minMentions, boundedLimit(limit))
}

// SearchAgentWork embeds query and runs semantic search over agent-work
// result summaries, falling back to lexical search on embedding failure.
func (s *Service) SearchAgentWork(ctx context.Context, query string, limit int) ([]model.AgentWork, error) {
	limit = boundedLimit(limit)

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("retrieval: search_agent_work embedding failed, falling back to lexical", "error", err)
		return s.db.AgentWorkLexicalSearch(ctx, query, limit)
	}
	return s.db.AgentWorkSemanticSearch(ctx, vec, limit)
}

// RecentAgentWork returns the most recently started agent-work rows.
func (s *Service) RecentAgentWork(ctx context.Context, limit int) ([]model.AgentWork, error) {
	return s.db.RecentAgentWork(ctx, boundedLimit(limit))
}

// AgentAnalytics bundles the per-definition performance rollup and the
// per-type tool-usage rollup for one agent type.
type AgentAnalytics struct {
	Performance []model.AgentPerformanceRow
	ToolUsage   []model.AgentToolUsageRow
}

// GetAgentAnalytics returns the performance and tool-usage rollups for an
// agent type.
func (s *Service) GetAgentAnalytics(ctx context.Context, agentType string, limit int) (AgentAnalytics, error) {
	limit = boundedLimit(limit)

	perf, err := s.db.AgentPerformance(ctx, agentType, limit)
	if err != nil {
		return AgentAnalytics{}, fmt.Errorf("retrieval: agent performance: %w", err)
	}
	usage, err := s.db.AgentToolUsage(ctx, agentType, limit)
	if err != nil {
		return AgentAnalytics{}, fmt.Errorf("retrieval: agent tool usage: %w", err)
	}
	return AgentAnalytics{Performance: perf, ToolUsage: usage}, nil
}

// CompareAgentConfigs returns version-over-version duration comparison for
// an agent type.
func (s *Service) CompareAgentConfigs(ctx context.Context, agentType string) ([]model.AgentVersionComparisonRow, error) {
	return s.db.AgentVersionComparison(ctx, agentType)
}

// SystemStatus reports store reachability, pipeline queue pressure, and
// whether the optional Qdrant mirror is configured and healthy.
func (s *Service) SystemStatus(ctx context.Context) model.SystemStatus {
	status := model.SystemStatus{}

	status.StoreReachable = s.db.Ping(ctx) == nil

	if s.coord != nil {
		status.PipelineQueueLen = s.coord.QueueDepth()
	}

	if s.searcher != nil {
		status.SearchIndexUsed = true
		status.SearchIndexOK = s.searcher.Healthy(ctx) == nil
	}

	return status
}
