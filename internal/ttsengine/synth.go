package ttsengine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/haasonsaas/mdflow-engine/internal/tts"
)

// SynthResult is the outcome of synthesizing one segment of speakable text.
type SynthResult struct {
	Audio      []byte
	DurationMS int64
	Format     string
	Provider   string
	Model      string
}

// Synthesizer turns one prose segment into audio bytes. Implementations
// must be safe for concurrent use: the orchestrator calls Synthesize from
// up to WorkerPool's concurrency limit of goroutines at once.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (SynthResult, error)
}

// TTSSynthesizer adapts the provider-fallback-chain TTS layer (Edge/OpenAI/
// ElevenLabs) to the Synthesizer interface the orchestrator needs: it runs
// tts.TextToSpeech, reads the resulting file into memory, and cleans up the
// temporary file it wrote.
type TTSSynthesizer struct {
	cfg *tts.Config
}

// NewTTSSynthesizer builds a Synthesizer bound to a TTS provider config.
func NewTTSSynthesizer(cfg *tts.Config) *TTSSynthesizer {
	return &TTSSynthesizer{cfg: cfg}
}

func (s *TTSSynthesizer) Synthesize(ctx context.Context, text string) (SynthResult, error) {
	result, err := tts.TextToSpeech(ctx, s.cfg, text, "")
	if err != nil {
		return SynthResult{}, fmt.Errorf("ttsengine: synthesize segment: %w", err)
	}
	defer tts.Cleanup(result)

	data, err := os.ReadFile(result.AudioPath)
	if err != nil {
		return SynthResult{}, fmt.Errorf("ttsengine: read synthesized audio: %w", err)
	}
	return SynthResult{
		// None of the wired providers report audio duration in their
		// response; per spec this falls back to 0 and is reconstructed
		// from the sum of segment durations at finalisation.
		Audio:    data,
		Format:   result.OutputFormat,
		Provider: string(result.Provider),
		Model:    modelOf(s.cfg),
	}, nil
}

func modelOf(cfg *tts.Config) string {
	if cfg == nil {
		return ""
	}
	switch cfg.Provider {
	case tts.ProviderOpenAI:
		return cfg.OpenAI.Model
	case tts.ProviderElevenLabs:
		return cfg.ElevenLabs.ModelID
	default:
		return string(cfg.Provider)
	}
}

// segmentTimeout is the per-segment hard timeout so an orphaned segment
// cannot stall finalisation (§4.7 "worker pool" invariants).
const segmentTimeout = 60 * time.Second
