package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_flatShape(t *testing.T) {
	input := `{"role":"user","content":"fix the bug"}
{"role":"assistant","content":"patched it"}
`
	conv, err := Read(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "patched it", conv.Messages[1].Content)
}

func TestRead_nestedClaudeCodeShape(t *testing.T) {
	input := `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"hello"}]}}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"world"}]}}
`
	conv, err := Read(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "world", conv.Messages[1].Content)
}

func TestRead_skipsMalformedLines(t *testing.T) {
	input := `not json at all
{"role":"user","content":"ok"}
{"type":"tool_use","id":"abc","name":"Bash"}

{"role":"assistant","content":"done"}
`
	conv, err := Read(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "ok", conv.Messages[0].Content)
	assert.Equal(t, "done", conv.Messages[1].Content)
}

func TestRead_emptyInputYieldsEmptyConversation(t *testing.T) {
	conv, err := Read(strings.NewReader(""), nil)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestRead_toolContentBlocksIgnored(t *testing.T) {
	input := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","text":""},{"type":"text","text":"the real answer"}]}}
`
	conv, err := Read(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "the real answer", conv.Messages[0].Content)
}
