// Package pipeline orchestrates one capture end to end: resolving the
// conversation, extracting metadata, summarizing, embedding, and
// persisting, in that strict order, against a bounded worker pool so a
// burst of captures never queues without limit.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/recall-run/recall/internal/embedding"
	"github.com/recall-run/recall/internal/extract"
	"github.com/recall-run/recall/internal/model"
	"github.com/recall-run/recall/internal/storage"
	"github.com/recall-run/recall/internal/summarize"
	"github.com/recall-run/recall/internal/telemetry"
	"github.com/recall-run/recall/internal/transcript"
)

// Stage timeouts. Each pipeline run derives its own deadline for the
// transcript read and the embedder call from these; the summarizer applies
// its own per-call timeout, and the store round-trip runs on the parent
// context with no deadline of its own.
const (
	transcriptReadTimeout = 10 * time.Second
	embedTimeout          = 15 * time.Second
)

// CaptureRequest is the validated Ingress payload for capture(). At least
// one of ConversationData or TranscriptPath must resolve to a non-empty
// conversation; that resolution happens inside the pipeline, not at
// Ingress — a transcript read failure is a pipeline-side EmptyConversation,
// not a synchronous BadRequest.
type CaptureRequest struct {
	ProjectPath    string
	Trigger        string
	ConversationData *model.Conversation
	SessionID      *string
	TranscriptPath *string
}

// AgentWorkRequest is the validated Ingress payload for
// capture_agent_work(). Metadata extraction is skipped for agent-work;
// summarization only runs when ResultSummary arrives empty (the agent is
// expected to have already produced its own summary text in the common
// case), and embedding always runs over whatever ResultSummary ends up as.
type AgentWorkRequest struct {
	RequestID        string
	ParentSnapshotID *int64
	ParentSessionID  string
	AgentDefinition  model.AgentDefinition
	AgentInstanceID  string
	Task             string
	TranscriptPath   *string
	Messages         []model.Message
	ToolUsage        map[string]int
	FilesExamined    []string
	URLsFetched      []string
	ResultSummary    string
	StartedAt        time.Time
	EndedAt          time.Time
}

// Coordinator runs the capture pipeline against a bounded worker pool fed
// by a bounded channel. Submit enqueues and returns immediately; workers
// drain the queue and run the full pipeline, logging every terminal
// outcome. Pipeline-side failures never surface back to the original
// caller — only the accept-time Busy (queue full) does.
type Coordinator struct {
	store      *storage.DB
	summarizer *summarize.Summarizer
	embedder   embedding.Provider
	logger     *slog.Logger

	queue chan job
	wg    sync.WaitGroup

	onCaptured func(model.Snapshot)
}

type job struct {
	capture   *CaptureRequest
	agentWork *AgentWorkRequest
}

// New constructs a Coordinator and starts its worker pool. Call Shutdown
// to drain in-flight work and stop the workers.
func New(store *storage.DB, summarizer *summarize.Summarizer, embedder embedding.Provider, workers, queueSize int, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		store:      store,
		summarizer: summarizer,
		embedder:   embedder,
		logger:     logger,
		queue:      make(chan job, queueSize),
	}
	c.registerMetrics()
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return c
}

// OnCaptured registers a callback invoked, on the worker goroutine, after
// a capture is successfully persisted. Used to bridge completed captures
// out to the public CaptureHook extension point without this package
// depending on it directly.
func (c *Coordinator) OnCaptured(fn func(model.Snapshot)) {
	c.onCaptured = fn
}

// Submit enqueues a capture request for asynchronous processing. Returns
// an error only when the queue is at capacity — the Ingress layer maps
// that to a Busy response, never to a pipeline-side failure.
func (c *Coordinator) Submit(req CaptureRequest) error {
	select {
	case c.queue <- job{capture: &req}:
		return nil
	default:
		return model.New(model.KindBusy, "pipeline: queue at capacity")
	}
}

// SubmitAgentWork enqueues an agent-work capture for asynchronous
// processing, with the same backpressure contract as Submit.
func (c *Coordinator) SubmitAgentWork(req AgentWorkRequest) error {
	select {
	case c.queue <- job{agentWork: &req}:
		return nil
	default:
		return model.New(model.KindBusy, "pipeline: queue at capacity")
	}
}

// Shutdown stops accepting new work and waits for in-flight jobs to drain,
// bounded by ctx.
func (c *Coordinator) Shutdown(ctx context.Context) {
	close(c.queue)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("pipeline: shutdown timed out waiting for workers to drain")
	}
}

func (c *Coordinator) worker(id int) {
	defer c.wg.Done()
	for j := range c.queue {
		// Each run gets its own background context rather than inheriting
		// any single request's lifetime — the caller who submitted the job
		// has already received its Accepted response and moved on.
		ctx := context.Background()
		if j.capture != nil {
			c.runCapture(ctx, *j.capture)
		} else if j.agentWork != nil {
			c.runAgentWork(ctx, *j.agentWork)
		}
	}
	_ = id
}

// runCapture executes stages 1-5 for one capture request. Every failure
// path is logged with its Kind; only EmptyConversation (stage 1) and
// StoreFatal (stage 5) abort the run without writing a row.
func (c *Coordinator) runCapture(ctx context.Context, req CaptureRequest) {
	log := c.logger.With("project_path", req.ProjectPath, "trigger", req.Trigger)

	conv, err := c.resolveConversation(ctx, req)
	if err != nil {
		log.Warn("pipeline: capture failed", "stage", "resolve_conversation", "kind", model.KindEmptyConversation, "error", err)
		return
	}

	md := extract.Extract(ctx, conv, req.ProjectPath)

	summary, degraded := c.summarizeCapture(ctx, conv, md, req)
	if degraded {
		log.Warn("pipeline: summarizer degraded", "stage", "summarize", "kind", model.KindSummarizerUnavailable)
	}

	vec, embedDegraded := c.embed(ctx, summary)
	if embedDegraded {
		log.Warn("pipeline: embedder degraded", "stage", "embed", "kind", model.KindEmbedderUnavailable)
	}

	rawBytes := approxBytes(conv)

	rec := model.Snapshot{
		ProjectPath:    req.ProjectPath,
		SessionID:      req.SessionID,
		TranscriptPath: req.TranscriptPath,
		Trigger:        req.Trigger,
		MessageCount:   md.MessageCount,
		RawContext:     conv,
		Summary:        summary,
		Embedding:      vec,
		Tags:           md.Tags,
		MentionedFiles: md.Files,
		KeyDecisions:   md.Decisions,
		BugsFixed:      md.Bugs,
		GitHash:        md.GitHash,
		GitBranch:      md.GitBranch,
		StorageBytes:   rawBytes,
	}

	result, err := c.store.Persist(ctx, rec)
	if err != nil {
		kind, _ := model.KindOf(err)
		log.Error("pipeline: capture failed", "stage", "persist", "kind", kind, "error", err)
		return
	}

	log.Info("pipeline: capture completed", "snapshot_id", result.ID, "action", result.Action)

	if c.onCaptured != nil {
		rec.ID = result.ID
		c.onCaptured(rec)
	}
}

// resolveConversation implements stage 1: prefer the inline document,
// otherwise read the transcript file. An empty resulting sequence is
// EmptyConversation regardless of which source produced it.
func (c *Coordinator) resolveConversation(ctx context.Context, req CaptureRequest) (model.Conversation, error) {
	if req.ConversationData != nil && len(req.ConversationData.Messages) > 0 {
		return *req.ConversationData, nil
	}

	if req.TranscriptPath != nil {
		readCtx, cancel := context.WithTimeout(ctx, transcriptReadTimeout)
		defer cancel()
		conv, err := readTranscript(readCtx, *req.TranscriptPath, c.logger)
		if err != nil {
			return model.Conversation{}, model.Wrap(model.KindEmptyConversation, "pipeline: read transcript", err)
		}
		if len(conv.Messages) == 0 {
			return model.Conversation{}, model.New(model.KindEmptyConversation, "pipeline: transcript had no resolvable messages")
		}
		return conv, nil
	}

	return model.Conversation{}, model.New(model.KindEmptyConversation, "pipeline: no conversation data or transcript path supplied")
}

func readTranscript(ctx context.Context, path string, logger *slog.Logger) (model.Conversation, error) {
	type result struct {
		conv model.Conversation
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conv, err := transcript.ReadFile(path, logger)
		done <- result{conv, err}
	}()
	select {
	case r := <-done:
		return r.conv, r.err
	case <-ctx.Done():
		return model.Conversation{}, ctx.Err()
	}
}

// summarizeCapture runs stage 3, fetching session-aware prior context from
// the Store first.
func (c *Coordinator) summarizeCapture(ctx context.Context, conv model.Conversation, md model.ExtractedMetadata, req CaptureRequest) (string, bool) {
	var prev *summarize.PreviousSnapshot
	if snap, err := c.store.MostRecentSnapshot(ctx, req.ProjectPath, req.SessionID); err == nil {
		excerpt := snap.Summary
		if len(excerpt) > 300 {
			excerpt = excerpt[:300]
		}
		prev = &summarize.PreviousSnapshot{
			ID:             snap.ID,
			Timestamp:      snap.Timestamp,
			SummaryExcerpt: excerpt,
			Tags:           snap.Tags,
		}
	}

	sctx := summarize.SessionContext{ProjectPath: req.ProjectPath, Trigger: req.Trigger}
	if req.SessionID != nil {
		sctx.SessionID = *req.SessionID
	}

	result := c.summarizer.Summarize(ctx, conv, md, sctx, prev)
	return result.Summary, result.Degraded
}

// embed runs stage 4, falling back to the deterministic synthetic vector
// on any provider error.
func (c *Coordinator) embed(ctx context.Context, text string) ([]float32, bool) {
	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vec, err := c.embedder.Embed(embedCtx, text)
	if err != nil {
		return embedding.Synthetic(text, c.embedder.Dimensions()), true
	}
	return vec, false
}

// runAgentWork executes the agent-work capture pipeline: no metadata
// extraction, summarization only on an empty ResultSummary, embedding
// always over the final ResultSummary text.
func (c *Coordinator) runAgentWork(ctx context.Context, req AgentWorkRequest) {
	log := c.logger.With("parent_session_id", req.ParentSessionID, "agent_instance_id", req.AgentInstanceID)

	def, err := c.store.UpsertAgentDefinition(ctx, req.AgentDefinition)
	if err != nil {
		kind, _ := model.KindOf(err)
		log.Error("pipeline: agent work failed", "stage", "upsert_agent_definition", "kind", kind, "error", err)
		return
	}

	summary := req.ResultSummary
	if summary == "" {
		conv := model.Conversation{Messages: req.Messages}
		md := model.ExtractedMetadata{MessageCount: len(req.Messages)}
		sctx := summarize.SessionContext{ProjectPath: "", SessionID: req.ParentSessionID, Trigger: "agent-work"}
		result := c.summarizer.Summarize(ctx, conv, md, sctx, nil)
		summary = result.Summary
		if result.Degraded {
			log.Warn("pipeline: agent work summarizer degraded", "stage", "summarize", "kind", model.KindSummarizerUnavailable)
		}
	}

	vec, embedDegraded := c.embed(ctx, summary)
	if embedDegraded {
		log.Warn("pipeline: agent work embedder degraded", "stage", "embed", "kind", model.KindEmbedderUnavailable)
	}

	rec := model.AgentWork{
		RequestID:        req.RequestID,
		ParentSnapshotID: req.ParentSnapshotID,
		ParentSessionID:  req.ParentSessionID,
		AgentDefID:       def.ID,
		AgentInstanceID:  req.AgentInstanceID,
		Task:             req.Task,
		TranscriptPath:   req.TranscriptPath,
		Messages:         req.Messages,
		ToolUsage:        req.ToolUsage,
		FilesExamined:    req.FilesExamined,
		URLsFetched:      req.URLsFetched,
		ResultSummary:    summary,
		Embedding:        vec,
		StartedAt:        req.StartedAt,
		EndedAt:          req.EndedAt,
	}

	out, err := c.store.PersistAgentWork(ctx, rec)
	if err != nil {
		kind, _ := model.KindOf(err)
		log.Error("pipeline: agent work failed", "stage", "persist", "kind", kind, "error", err)
		return
	}

	log.Info("pipeline: agent work completed", "agent_work_id", out.ID, "agent_def_id", def.ID, "version", def.Version)
}

// Reprocess re-runs stages 3-5 (summarize, embed, persist) against a
// snapshot's stored raw context, for the out-of-core reprocessing utility.
// Unlike Submit, this runs synchronously on the caller's goroutine — it is
// a low-volume maintenance operation, not subject to the capture queue's
// backpressure contract.
func (c *Coordinator) Reprocess(ctx context.Context, snapshotID int64) error {
	snap, err := c.store.GetSnapshotForReprocess(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("pipeline: reprocess: load snapshot: %w", err)
	}

	md := model.ExtractedMetadata{
		Tags:         snap.Tags,
		Files:        snap.MentionedFiles,
		Decisions:    snap.KeyDecisions,
		Bugs:         snap.BugsFixed,
		GitHash:      snap.GitHash,
		GitBranch:    snap.GitBranch,
		MessageCount: snap.MessageCount,
	}

	req := CaptureRequest{ProjectPath: snap.ProjectPath, Trigger: snap.Trigger, SessionID: snap.SessionID}
	summary, _ := c.summarizeCapture(ctx, snap.RawContext, md, req)
	vec, _ := c.embed(ctx, summary)

	snap.Summary = summary
	snap.Embedding = vec

	_, err = c.store.Persist(ctx, snap)
	if err != nil {
		return fmt.Errorf("pipeline: reprocess: persist: %w", err)
	}
	return nil
}

// approxBytes is the storage_bytes figure recorded alongside a snapshot: the
// summed byte length of every message's role and content, an approximation
// of the raw conversation's serialized size that avoids a second round-trip
// to ask Postgres.
func approxBytes(conv model.Conversation) int64 {
	var n int64
	for _, m := range conv.Messages {
		n += int64(len(m.Role) + len(m.Content))
	}
	return n
}

// QueueDepth returns the number of jobs currently buffered, used by the
// depth gauge and by tests asserting backpressure behavior.
func (c *Coordinator) QueueDepth() int {
	return len(c.queue)
}

func (c *Coordinator) registerMetrics() {
	meter := telemetry.Meter("recall/pipeline")

	_, _ = meter.Int64ObservableGauge("recall.pipeline.queue_depth",
		metric.WithDescription("Current number of capture jobs buffered in the pipeline queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(c.QueueDepth()))
			return nil
		}),
	)
}
