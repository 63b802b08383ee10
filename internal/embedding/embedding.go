// Package embedding produces fixed-dimension vector embeddings for summary
// text, with a deterministic synthetic fallback for degraded mode.
package embedding

import "context"

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// SyntheticProvider returns a deterministic vector derived from the input
// text rather than calling any external model. It never errors, so it is
// the terminal fallback in the embedder's degradation ladder: for
// i in [0, dimensions), component i is sin(i * k) where k is derived from
// the text so that identical input always produces an identical vector.
type SyntheticProvider struct {
	dimensions int
}

// NewSyntheticProvider constructs a SyntheticProvider for the given
// dimension.
func NewSyntheticProvider(dimensions int) *SyntheticProvider {
	return &SyntheticProvider{dimensions: dimensions}
}

func (p *SyntheticProvider) Dimensions() int { return p.dimensions }

func (p *SyntheticProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return Synthetic(text, p.dimensions), nil
}
