package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recall-run/recall/internal/model"
)

func TestExtract_S1tagsAndFiles(t *testing.T) {
	conv := model.Conversation{Messages: []model.Message{
		{Role: "user", Content: "fix the SQL injection in login"},
		{Role: "assistant", Content: "patched src/auth.js line 42; added tests in test/auth.test.js"},
	}}

	md := Extract(context.Background(), conv, "")

	assert.Contains(t, md.Tags, "security")
	assert.Contains(t, md.Tags, "bug-fix")
	assert.Contains(t, md.Files, "src/auth.js")
	assert.Contains(t, md.Files, "test/auth.test.js")
	assert.Equal(t, 2, md.MessageCount)
}

func TestExtract_decisionCaptureOver200CharsDropped(t *testing.T) {
	long := strings.Repeat("x", 201)
	conv := model.Conversation{Messages: []model.Message{
		{Role: "assistant", Content: "decided to " + long},
	}}

	md := Extract(context.Background(), conv, "")
	assert.Empty(t, md.Decisions)
}

func TestExtract_decisionCaptureAt200CharsKept(t *testing.T) {
	exact := strings.Repeat("x", 200)
	conv := model.Conversation{Messages: []model.Message{
		{Role: "assistant", Content: "decided to " + exact},
	}}

	md := Extract(context.Background(), conv, "")
	assert.Len(t, md.Decisions, 1)
}

func TestExtract_tagsTruncatedAtTen(t *testing.T) {
	conv := model.Conversation{Messages: []model.Message{
		{Role: "user", Content: "security vulnerability bug fix feature implement refactor cleanup test coverage optimize cache database migration endpoint api ui component readme deploy docker"},
	}}

	md := Extract(context.Background(), conv, "")
	assert.LessOrEqual(t, len(md.Tags), 10)
}

func TestExtract_bugPhrases(t *testing.T) {
	conv := model.Conversation{Messages: []model.Message{
		{Role: "assistant", Content: "fixed the race condition in the worker pool"},
	}}

	md := Extract(context.Background(), conv, "")
	assert.NotEmpty(t, md.Bugs)
}

func TestExtract_deterministic(t *testing.T) {
	conv := model.Conversation{Messages: []model.Message{
		{Role: "user", Content: "decided to use postgres for storage"},
	}}

	a := Extract(context.Background(), conv, "")
	b := Extract(context.Background(), conv, "")
	assert.Equal(t, a, b)
}

func TestExtract_noProjectPathSkipsVCS(t *testing.T) {
	md := Extract(context.Background(), model.Conversation{}, "")
	assert.Nil(t, md.GitHash)
	assert.Nil(t, md.GitBranch)
}
