package summarize

import (
	"fmt"

	"github.com/recall-run/recall/internal/model"
)

// SampleConfig is the head/middle/tail message-selection policy. Its
// defaults (20/30/50) are policy, not constants — they are read from
// config, never hardcoded at a call site.
type SampleConfig struct {
	FirstN  int
	MiddleN int
	LastN   int
}

// DefaultSampleConfig returns the spec's documented defaults.
func DefaultSampleConfig() SampleConfig {
	return SampleConfig{FirstN: 20, MiddleN: 30, LastN: 50}
}

const maxMessageChars = 500
const truncationMarker = "... [truncated]"

// Strategy names the message-selection outcome for a given conversation
// length, surfaced for logging and tests.
type Strategy string

const (
	StrategyFull    Strategy = "full"
	StrategySampled Strategy = "sampled"
)

// Sample selects the messages to include in the summarization prompt. If
// the conversation has at most cfg.FirstN+cfg.MiddleN+cfg.LastN messages,
// every message is used (StrategyFull). Otherwise the first FirstN, an
// evenly spaced sample of up to MiddleN from the middle band, and the last
// LastN are concatenated in that order (StrategySampled). Every selected
// message's content is capped at 500 characters.
func Sample(messages []model.Message, cfg SampleConfig) ([]model.Message, Strategy) {
	n := len(messages)
	threshold := cfg.FirstN + cfg.MiddleN + cfg.LastN

	if n <= threshold {
		return capAll(messages), StrategyFull
	}

	selected := make([]model.Message, 0, threshold)
	selected = append(selected, messages[:cfg.FirstN]...)

	middleStart := cfg.FirstN
	middleEnd := n - cfg.LastN
	selected = append(selected, evenSample(messages[middleStart:middleEnd], cfg.MiddleN)...)

	selected = append(selected, messages[n-cfg.LastN:]...)

	return capAll(selected), StrategySampled
}

// evenSample picks up to k evenly spaced messages from band, preserving
// order.
func evenSample(band []model.Message, k int) []model.Message {
	if k <= 0 || len(band) == 0 {
		return nil
	}
	if len(band) <= k {
		return band
	}

	out := make([]model.Message, 0, k)
	step := float64(len(band)) / float64(k)
	for i := 0; i < k; i++ {
		idx := int(float64(i) * step)
		if idx >= len(band) {
			idx = len(band) - 1
		}
		out = append(out, band[idx])
	}
	return out
}

func capAll(messages []model.Message) []model.Message {
	out := make([]model.Message, len(messages))
	for i, m := range messages {
		out[i] = model.Message{Role: m.Role, Content: capContent(m.Content)}
	}
	return out
}

// capContent truncates content to at most 500 characters, appending the
// truncation marker when truncation occurs. Content at exactly the limit
// passes through unchanged.
func capContent(content string) string {
	if len(content) <= maxMessageChars {
		return content
	}
	cut := maxMessageChars - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	return fmt.Sprintf("%s%s", content[:cut], truncationMarker)
}
