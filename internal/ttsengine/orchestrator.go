// Package ttsengine implements the Streaming TTS Orchestrator (C7): it
// accepts a stream of text chunks belonging to one generated block, splits
// them into ordered audio parts aligned with visual boundaries (C6), and
// drives each part's Sub-Processor to segment, synthesise, and emit audio
// in order (C8).
package ttsengine

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/internal/observability"
	"github.com/haasonsaas/mdflow-engine/internal/usage"
	"github.com/haasonsaas/mdflow-engine/internal/visual"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// Config tunes the orchestrator's batching and concurrency.
type Config struct {
	MaxSegmentChars int
	Workers         int
}

// DefaultConfig returns the spec-documented defaults (300 chars, 4 workers).
func DefaultConfig() Config {
	return Config{MaxSegmentChars: DefaultMaxSegmentChars, Workers: 4}
}

// RequestIdentity carries the ambient ids an orchestrator run stamps onto
// persisted rows and metering entries.
type RequestIdentity struct {
	UserBID           string
	ShifuBID          string
	ProgressRecordBID string
	GeneratedBlockBID string
	Scene             mdflow.UsageScene
}

// Orchestrator drives one generated block's streaming TTS run end to end.
type Orchestrator struct {
	cfg      Config
	pool     *WorkerPool
	synth    Synthesizer
	uploader Uploader
	store    AudioStore
	usage    *usage.Recorder
	emitter  *events.Emitter
	identity RequestIdentity

	logger *observability.Logger

	mu             sync.Mutex
	buf            string
	parts          []*part
	nextSlideIndex int
}

// SetLogger wires the process-wide structured logger. logger may be nil.
func (o *Orchestrator) SetLogger(logger *observability.Logger) {
	o.logger = logger
}

// New builds an Orchestrator. pool may be shared across concurrently
// running orchestrators (it is the process-wide bounded worker pool).
func New(cfg Config, pool *WorkerPool, synth Synthesizer, uploader Uploader, store AudioStore, recorder *usage.Recorder, emitter *events.Emitter, identity RequestIdentity) *Orchestrator {
	if cfg.MaxSegmentChars <= 0 {
		cfg.MaxSegmentChars = DefaultMaxSegmentChars
	}
	if pool == nil {
		pool = NewWorkerPool(4)
	}
	return &Orchestrator{
		cfg: cfg, pool: pool, synth: synth, uploader: uploader,
		store: store, usage: recorder, emitter: emitter, identity: identity,
	}
}

// Feed appends a streamed text chunk and advances part splitting and
// segmentation. It must be called serially (single producer) — concurrency
// is internal (segment synthesis only), not across Feed calls.
func (o *Orchestrator) Feed(ctx context.Context, chunk string) {
	o.buf += chunk
	closedRaw, openTail, lastVisual := splitBuffer(o.buf)

	for i := len(o.parts); i < len(closedRaw); i++ {
		o.openPart(ctx, closedRaw[i].precededBy)
	}
	for i, rs := range closedRaw {
		p := o.parts[i]
		if !p.closed {
			o.closePart(ctx, p, rs.text)
		}
	}
	if len(o.parts) == len(closedRaw) {
		o.openPart(ctx, lastVisual)
	}
	open := o.parts[len(o.parts)-1]
	if !open.closed {
		open.raw = openTail
		open.sp.Append(ctx, open.raw)
	}
}

func (o *Orchestrator) openPart(ctx context.Context, precededBy *visual.Match) {
	position := len(o.parts)
	p := &part{position: position, precededBy: precededBy}
	p.sp = newSubProcessor(o.pool, o.synth, o.cfg.MaxSegmentChars, func(em segmentEmission) {
		o.onSegmentEmit(ctx, p, em)
	})
	o.parts = append(o.parts, p)

	if precededBy != nil {
		o.nextSlideIndex++
		o.emitter.NewSlide(ctx, mdflow.NewSlidePayload{
			SlideID:           mdflow.NewBID(),
			GeneratedBlockBID: o.identity.GeneratedBlockBID,
			SlideIndex:        o.nextSlideIndex - 1,
			AudioPosition:     position,
			VisualKind:        string(precededBy.Kind),
			SegmentContent:    precededBy.Content,
			SourceSpan:        [2]int{precededBy.Start, precededBy.End},
		})
	}
}

func (o *Orchestrator) closePart(ctx context.Context, p *part, finalText string) {
	p.raw = finalText
	p.sp.Append(ctx, p.raw)
	p.sp.Close(ctx, p.raw)
	p.closed = true
}

func (o *Orchestrator) onSegmentEmit(ctx context.Context, p *part, em segmentEmission) {
	if !em.ok {
		return
	}
	o.emitter.AudioSegment(ctx, mdflow.AudioSegmentPayload{
		Position:     p.position,
		SegmentIndex: em.index,
		AudioData:    base64Encode(em.audio),
		DurationMS:   em.durationMS,
		IsFinal:      em.isFinal,
	})
}

// Finalize closes the open part, waits for every part's outstanding
// segments, concatenates and uploads each non-empty part's audio, persists
// a LearnGeneratedAudio row, and emits AUDIO_COMPLETE events in position
// order. Per §4.7.3, an empty part (no successful segments) is dropped
// silently; an upload failure surfaces an error with no AUDIO_COMPLETE for
// that part.
func (o *Orchestrator) Finalize(ctx context.Context) error {
	return o.finalize(ctx, false)
}

// FinalizePreview skips OSS upload and DB persistence (§4.7.4).
func (o *Orchestrator) FinalizePreview(ctx context.Context) error {
	return o.finalize(ctx, true)
}

func (o *Orchestrator) finalize(ctx context.Context, preview bool) error {
	if len(o.parts) > 0 {
		last := o.parts[len(o.parts)-1]
		if !last.closed {
			o.closePart(ctx, last, last.raw)
		}
	}

	for _, p := range o.parts {
		p.sp.Wait()
		segmentCount, audioChunks, durations, wordCount := p.sp.Finalize()
		if segmentCount == 0 {
			if o.logger != nil {
				o.logger.Warn(ctx, "tts part dropped: no successful segments",
					"generated_block_bid", o.identity.GeneratedBlockBID, "position", p.position)
			}
			continue // dropped silently: no successful segments
		}

		joined := joinAudio(audioChunks)
		durationMS := sumDurationsMS(durations)
		audioBID := mdflow.NewBID()

		var audioURL string
		if !preview {
			key := AudioObjectKey(audioBID)
			url, err := o.uploader.Upload(ctx, key, joined)
			if err != nil {
				if o.logger != nil {
					o.logger.Error(ctx, "tts upload failed", "error", err, "position", p.position)
				}
				return fmt.Errorf("ttsengine: upload part %d: %w", p.position, err)
			}
			audioURL = url

			row := &mdflow.LearnGeneratedAudio{
				AudioBID:          audioBID,
				GeneratedBlockBID: o.identity.GeneratedBlockBID,
				Position:          p.position,
				ProgressRecordBID: o.identity.ProgressRecordBID,
				UserBID:           o.identity.UserBID,
				ShifuBID:          o.identity.ShifuBID,
				OSSObjectKey:      key,
				OSSURL:            audioURL,
				DurationMS:        durationMS,
				FileSize:          int64(len(joined)),
				AudioFormat:       "mp3",
				TextLength:        len(p.raw),
				SegmentCount:      segmentCount,
				Status:            mdflow.AudioCompleted,
			}
			if o.store != nil {
				if err := o.store.InsertGeneratedAudio(ctx, row); err != nil {
					return fmt.Errorf("ttsengine: persist generated audio for part %d: %w", p.position, err)
				}
			}
		}

		if o.usage != nil {
			o.usage.RecordTTSUsage(ctx, usage.TTSUsageInput{
				UsageBID:   audioBID,
				UserBID:    o.identity.UserBID,
				ShifuBID:   o.identity.ShifuBID,
				WordCount:  wordCount,
				DurationMS: durationMS,
				Scene:      o.identity.Scene,
			})
		}

		o.emitter.AudioComplete(ctx, mdflow.AudioCompletePayload{
			Position:   p.position,
			AudioURL:   audioURL,
			AudioBID:   audioBID,
			DurationMS: durationMS,
		})
	}
	return nil
}

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
