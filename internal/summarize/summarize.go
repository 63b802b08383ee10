// Package summarize produces a session-aware, metadata-primed summary of a
// conversation against an external text model, with a deterministic
// extractive fallback when the model is unavailable, slow, or disabled.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/recall-run/recall/internal/model"
)

// ModelClient calls the external summarization model.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SessionContext identifies the capture this summary belongs to, for
// logging and for the session-aware "previous session" prompt section.
type SessionContext struct {
	ProjectPath string
	SessionID   string
	Trigger     string
}

// PreviousSnapshot is the minimal prior-capture context the Store supplies
// for session-aware summarization.
type PreviousSnapshot struct {
	ID              int64
	Timestamp       time.Time
	SummaryExcerpt  string // up to 300 characters
	Tags            []string
}

// Summarizer produces summaries, falling back to an extractive template on
// model failure or when AI summaries are disabled.
type Summarizer struct {
	client   ModelClient
	useAI    bool
	sampleCfg SampleConfig
	timeout  time.Duration
}

// New constructs a Summarizer. client may be nil; useAI=false forces the
// extractive path regardless.
func New(client ModelClient, useAI bool, sampleCfg SampleConfig) *Summarizer {
	return &Summarizer{
		client:    client,
		useAI:     useAI,
		sampleCfg: sampleCfg,
		// The model call gets a generous timeout to accommodate slow local
		// models; callers may still cancel ctx earlier via their own deadline.
		timeout: 3 * time.Minute,
	}
}

// Result carries the summary text plus whether it was produced via the
// degraded extractive path.
type Result struct {
	Summary  string
	Degraded bool
	Strategy Strategy
}

// Summarize produces a summary for conv. prev is nil when no prior snapshot
// exists for the project.
func (s *Summarizer) Summarize(ctx context.Context, conv model.Conversation, md model.ExtractedMetadata, sctx SessionContext, prev *PreviousSnapshot) Result {
	selected, strategy := Sample(conv.Messages, s.sampleCfg)

	if !s.useAI || s.client == nil {
		return Result{Summary: Extractive(conv), Degraded: true, Strategy: strategy}
	}

	prompt := BuildPrompt(selected, md, sctx, prev)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := s.client.Generate(callCtx, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		return Result{Summary: Extractive(conv), Degraded: true, Strategy: strategy}
	}

	return Result{Summary: summary, Degraded: false, Strategy: strategy}
}

// BuildPrompt assembles the structured, section-headed prompt instructing
// the model to cover primary goal, files modified, features added, bugs
// fixed, technical decisions, session metrics, and continuity with the
// previous session.
func BuildPrompt(messages []model.Message, md model.ExtractedMetadata, sctx SessionContext, prev *PreviousSnapshot) string {
	var sb strings.Builder

	sb.WriteString("Summarize this coding session. Output a structured summary with these sections:\n")
	sb.WriteString("Primary Goal, Files Modified, Features Added, Bugs Fixed, Technical Decisions, Session Metrics, Continuity.\n\n")

	sb.WriteString("Previous session context: ")
	if prev != nil {
		sb.WriteString(fmt.Sprintf("snapshot #%d at %s, summary excerpt: %q, tags: %v\n",
			prev.ID, prev.Timestamp.Format(time.RFC3339), prev.SummaryExcerpt, prev.Tags))
	} else {
		sb.WriteString("none — this is the first captured snapshot for this project.\n")
	}

	sb.WriteString(fmt.Sprintf("\nProject: %s  Trigger: %s\n", sctx.ProjectPath, sctx.Trigger))
	if len(md.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("Detected tags: %v\n", md.Tags))
	}
	if len(md.Files) > 0 {
		sb.WriteString(fmt.Sprintf("Mentioned files: %v\n", md.Files))
	}

	sb.WriteString("\nConversation:\n")
	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", m.Role, m.Content))
	}

	return sb.String()
}

// Extractive returns the deterministic fallback summary: the first user
// message (up to 200 characters) labeled "Request", the last assistant
// message (up to 300 characters) labeled "Outcome", and the total message
// count.
func Extractive(conv model.Conversation) string {
	request := firstByRole(conv.Messages, "user", 200)
	outcome := lastByRole(conv.Messages, "assistant", 300)

	return fmt.Sprintf("Request: %s\n\nOutcome: %s\n\nTotal messages: %d", request, outcome, len(conv.Messages))
}

func firstByRole(messages []model.Message, role string, limit int) string {
	for _, m := range messages {
		if m.Role == role {
			return truncate(m.Content, limit)
		}
	}
	return ""
}

func lastByRole(messages []model.Message, role string, limit int) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return truncate(messages[i].Content, limit)
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
