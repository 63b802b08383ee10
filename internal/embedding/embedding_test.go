package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticProvider_dimensions(t *testing.T) {
	p := NewSyntheticProvider(384)
	vec, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestSyntheticProvider_deterministic(t *testing.T) {
	p := NewSyntheticProvider(384)
	a, _ := p.Embed(context.Background(), "same text")
	b, _ := p.Embed(context.Background(), "same text")
	assert.Equal(t, a, b)
}

func TestSyntheticProvider_variesByInput(t *testing.T) {
	p := NewSyntheticProvider(384)
	a, _ := p.Embed(context.Background(), "text one")
	b, _ := p.Embed(context.Background(), "text two")
	assert.NotEqual(t, a, b)
}

func TestOllamaProvider_embedSingle(t *testing.T) {
	vec := make([]float32, 384)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nomic-embed-text", 384)
	got, err := p.Embed(context.Background(), "some summary text")
	require.NoError(t, err)
	assert.Len(t, got, 384)
}

func TestOllamaProvider_dimensionMismatchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": make([]float32, 10)})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nomic-embed-text", 384)
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestOllamaProvider_serverErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nomic-embed-text", 384)
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
}
