package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-run/recall/internal/model"
)

func genMessages(n int) []model.Message {
	out := make([]model.Message, n)
	for i := range out {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out[i] = model.Message{Role: role, Content: "message content"}
	}
	return out
}

func TestSample_exactlyThresholdUsesFull(t *testing.T) {
	cfg := SampleConfig{FirstN: 20, MiddleN: 30, LastN: 50}
	messages := genMessages(cfg.FirstN + cfg.MiddleN + cfg.LastN)

	_, strategy := Sample(messages, cfg)
	assert.Equal(t, StrategyFull, strategy)
}

func TestSample_oneMoreThanThresholdUsesSampled(t *testing.T) {
	cfg := SampleConfig{FirstN: 20, MiddleN: 30, LastN: 50}
	messages := genMessages(cfg.FirstN + cfg.MiddleN + cfg.LastN + 1)

	_, strategy := Sample(messages, cfg)
	assert.Equal(t, StrategySampled, strategy)
}

func TestSample_sampledIncludesFirstAndLast(t *testing.T) {
	cfg := SampleConfig{FirstN: 2, MiddleN: 2, LastN: 2}
	messages := make([]model.Message, 20)
	for i := range messages {
		messages[i] = model.Message{Role: "user", Content: string(rune('a' + i))}
	}

	selected, strategy := Sample(messages, cfg)
	assert.Equal(t, StrategySampled, strategy)
	assert.Equal(t, messages[0].Content, selected[0].Content)
	assert.Equal(t, messages[1].Content, selected[1].Content)
	last := selected[len(selected)-1]
	assert.Equal(t, messages[len(messages)-1].Content, last.Content)
}

func TestCapContent_exactly500Unchanged(t *testing.T) {
	s := strings.Repeat("a", 500)
	assert.Equal(t, s, capContent(s))
}

func TestCapContent_over500Truncated(t *testing.T) {
	s := strings.Repeat("a", 501)
	got := capContent(s)
	assert.LessOrEqual(t, len(got), 500)
	assert.Contains(t, got, truncationMarker)
}

func TestExtractive_template(t *testing.T) {
	conv := model.Conversation{Messages: []model.Message{
		{Role: "user", Content: "fix the SQL injection in login"},
		{Role: "assistant", Content: "patched src/auth.js line 42; added tests in test/auth.test.js"},
	}}

	got := Extractive(conv)
	want := "Request: fix the SQL injection in login\n\nOutcome: patched src/auth.js line 42; added tests in test/auth.test.js\n\nTotal messages: 2"
	assert.Equal(t, want, got)
}

type failingClient struct{}

func (failingClient) Generate(context.Context, string) (string, error) {
	return "", errors.New("model unreachable")
}

func TestSummarize_modelFailureFallsBackToExtractive(t *testing.T) {
	s := New(failingClient{}, true, DefaultSampleConfig())
	conv := model.Conversation{Messages: []model.Message{
		{Role: "user", Content: "fix the SQL injection in login"},
		{Role: "assistant", Content: "patched src/auth.js"},
	}}

	result := s.Summarize(context.Background(), conv, model.ExtractedMetadata{}, SessionContext{}, nil)
	require.True(t, result.Degraded)
	assert.Contains(t, result.Summary, "Request:")
}

func TestSummarize_useAIFalseForcesExtractive(t *testing.T) {
	s := New(nil, false, DefaultSampleConfig())
	conv := model.Conversation{Messages: []model.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "world"},
	}}

	result := s.Summarize(context.Background(), conv, model.ExtractedMetadata{}, SessionContext{}, nil)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.Summary, "Total messages: 2")
}

type echoClient struct{ out string }

func (c echoClient) Generate(context.Context, string) (string, error) {
	return c.out, nil
}

func TestSummarize_modelSuccessUsed(t *testing.T) {
	s := New(echoClient{out: "a generated summary"}, true, DefaultSampleConfig())
	conv := model.Conversation{Messages: []model.Message{{Role: "user", Content: "hi"}}}

	result := s.Summarize(context.Background(), conv, model.ExtractedMetadata{}, SessionContext{}, nil)
	assert.False(t, result.Degraded)
	assert.Equal(t, "a generated summary", result.Summary)
}
