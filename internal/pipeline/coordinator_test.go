package pipeline

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/recall-run/recall/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestSubmit_busyWhenQueueFull(t *testing.T) {
	// No workers drain the queue, so the second Submit past capacity must
	// see Busy rather than block.
	c := New(nil, nil, nil, 0, 1, testLogger())

	if err := c.Submit(CaptureRequest{ProjectPath: "p"}); err != nil {
		t.Fatalf("expected first submit to succeed, got %v", err)
	}
	if err := c.Submit(CaptureRequest{ProjectPath: "p"}); err == nil {
		t.Fatal("expected second submit to fail with queue at capacity")
	}
}

func TestSubmitAgentWork_busyWhenQueueFull(t *testing.T) {
	c := New(nil, nil, nil, 0, 1, testLogger())

	if err := c.SubmitAgentWork(AgentWorkRequest{ParentSessionID: "s"}); err != nil {
		t.Fatalf("expected first submit to succeed, got %v", err)
	}
	if err := c.SubmitAgentWork(AgentWorkRequest{ParentSessionID: "s"}); err == nil {
		t.Fatal("expected second submit to fail with queue at capacity")
	}
}

func TestQueueDepth_reflectsBufferedJobs(t *testing.T) {
	c := New(nil, nil, nil, 0, 4, testLogger())

	if got := c.QueueDepth(); got != 0 {
		t.Fatalf("expected empty queue depth 0, got %d", got)
	}
	_ = c.Submit(CaptureRequest{ProjectPath: "a"})
	_ = c.Submit(CaptureRequest{ProjectPath: "b"})
	if got := c.QueueDepth(); got != 2 {
		t.Fatalf("expected queue depth 2, got %d", got)
	}
}

func TestShutdown_drainsWorkersWithinDeadline(t *testing.T) {
	// With zero real work enqueued, shutdown must return promptly rather
	// than hang waiting on workers that have nothing to process.
	c := New(nil, nil, nil, 2, 4, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Shutdown(ctx)
}

func TestApproxBytes_sumsRoleAndContentLengths(t *testing.T) {
	conv := model.Conversation{Messages: []model.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "world"},
	}}
	got := approxBytes(conv)
	want := int64(len("user") + len("hello") + len("assistant") + len("world"))
	if got != want {
		t.Fatalf("approxBytes() = %d, want %d", got, want)
	}
}

func TestResolveConversation_emptyInlineFallsThroughToMissingSource(t *testing.T) {
	c := &Coordinator{logger: testLogger()}
	empty := model.Conversation{}
	_, err := c.resolveConversation(context.Background(), CaptureRequest{ConversationData: &empty})
	if err == nil {
		t.Fatal("expected EmptyConversation when no source resolves")
	}
	if kind, ok := model.KindOf(err); !ok || kind != model.KindEmptyConversation {
		t.Fatalf("expected KindEmptyConversation, got %v (ok=%v)", kind, ok)
	}
}

func TestResolveConversation_usesInlineConversationWhenPresent(t *testing.T) {
	c := &Coordinator{logger: testLogger()}
	conv := model.Conversation{Messages: []model.Message{{Role: "user", Content: "hi"}}}
	got, err := c.resolveConversation(context.Background(), CaptureRequest{ConversationData: &conv})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got.Messages))
	}
}
