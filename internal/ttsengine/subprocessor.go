package ttsengine

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/mdflow-engine/internal/ttsprep"
)

// DefaultMaxSegmentChars is the default batching window for non-first
// segments (config-overridable per §4.7.2).
const DefaultMaxSegmentChars = 300

var sentenceTerminators = []rune{'.', '!', '?', '。', '！', '？', '；', ';'}

func isSentenceTerminator(r rune) bool {
	for _, t := range sentenceTerminators {
		if r == t {
			return true
		}
	}
	return false
}

// earliestTerminatorCut returns the byte offset just past the first
// sentence terminator in s, or -1 if none is present.
func earliestTerminatorCut(s string) int {
	for i, r := range s {
		if isSentenceTerminator(r) {
			return i + utf8.RuneLen(r)
		}
	}
	return -1
}

// lastTerminatorCut returns the byte offset just past the last sentence
// terminator in s, or -1 if none is present.
func lastTerminatorCut(s string) int {
	cut := -1
	for i, r := range s {
		if isSentenceTerminator(r) {
			cut = i + utf8.RuneLen(r)
		}
	}
	return cut
}

type segmentResult struct {
	text      string
	result    SynthResult
	err       error
	latencyMS int64
}

// segmentEmission is what a subProcessor hands back to its owning part for
// every segment it releases in order.
type segmentEmission struct {
	index      int
	text       string
	audio      []byte
	durationMS int64
	isFinal    bool
	ok         bool // false when the segment's synthesis failed
}

// subProcessor implements the per-part speakable-prose segmentation and
// ordered emission described in §4.7.2-4.7.3.
type subProcessor struct {
	pool            *WorkerPool
	synth           Synthesizer
	maxSegmentChars int

	mu                sync.Mutex
	wg                sync.WaitGroup
	processedOffset   int
	firstSentenceDone bool
	nextSubmit        int
	nextYield         int
	closed            bool
	segments          map[int]*segmentResult
	wordCountTotal    int64
	allAudio          [][]byte
	durations         []int64

	onEmit func(segmentEmission)
}

func newSubProcessor(pool *WorkerPool, synth Synthesizer, maxSegmentChars int, onEmit func(segmentEmission)) *subProcessor {
	if maxSegmentChars <= 0 {
		maxSegmentChars = DefaultMaxSegmentChars
	}
	return &subProcessor{
		pool:            pool,
		synth:           synth,
		maxSegmentChars: maxSegmentChars,
		segments:        make(map[int]*segmentResult),
		onEmit:          onEmit,
	}
}

// Append feeds the part's full raw text accumulated so far (not just the
// incremental tail) — the preprocessor is re-run over the whole part on
// every append because its incomplete-tail stripping is not idempotent
// across growing inputs, and the offset tracking below skips already
// submitted text.
func (sp *subProcessor) Append(ctx context.Context, rawPartText string) {
	cleaned := ttsprep.PreprocessForTTS(rawPartText)
	for {
		if sp.processedOffset > len(cleaned) {
			return
		}
		tail := cleaned[sp.processedOffset:]
		trimmed := strings.TrimLeft(tail, " \t\n\r")
		sp.processedOffset += len(tail) - len(trimmed)
		tail = trimmed
		if len(tail) < 2 {
			return
		}

		if !sp.firstSentenceDone {
			cut := earliestTerminatorCut(tail)
			if cut == -1 {
				return
			}
			sp.submit(ctx, tail[:cut])
			sp.processedOffset += cut
			sp.firstSentenceDone = true
			continue
		}

		if len(tail) < sp.maxSegmentChars {
			return
		}
		window := tail
		if len(window) > sp.maxSegmentChars {
			window = window[:sp.maxSegmentChars]
		}
		cut := lastTerminatorCut(window)
		if cut == -1 {
			cut = len(window)
		}
		sp.submit(ctx, tail[:cut])
		sp.processedOffset += cut
	}
}

// Close submits the remaining tail (if long enough) as the final segment
// and marks the part as no longer accepting appends.
func (sp *subProcessor) Close(ctx context.Context, rawPartText string) {
	cleaned := ttsprep.PreprocessForTTS(rawPartText)
	if sp.processedOffset < len(cleaned) {
		tail := strings.TrimLeft(cleaned[sp.processedOffset:], " \t\n\r")
		if len(tail) >= 2 {
			sp.submit(ctx, tail)
			sp.processedOffset = len(cleaned)
		}
	}
	sp.mu.Lock()
	sp.closed = true
	sp.mu.Unlock()

	// Flush anything drainReady held back while waiting to learn whether
	// it was the final segment — including the case where no segment was
	// ever submitted (nextSubmit == 0), which is a no-op here.
	sp.drainReady()
}

func (sp *subProcessor) submit(ctx context.Context, text string) {
	sp.mu.Lock()
	idx := sp.nextSubmit
	sp.nextSubmit++
	sp.mu.Unlock()

	sp.wg.Add(1)
	sp.pool.Run(ctx, func() {
		defer sp.wg.Done()
		segCtx, cancel := context.WithTimeout(ctx, segmentTimeout)
		defer cancel()

		start := time.Now()
		result, err := sp.synth.Synthesize(segCtx, text)
		latency := time.Since(start)

		sp.mu.Lock()
		sp.segments[idx] = &segmentResult{text: text, result: result, err: err, latencyMS: latency.Milliseconds()}
		sp.mu.Unlock()

		sp.drainReady()
	})
}

// drainReady emits every segment available at the current _next_yield_index
// in strict ascending order. It holds back the segment occupying what is
// currently the last submitted index until the part is closed: until then,
// more segments may still be submitted, so whether that index is really
// final is unknown. Close calls drainReady again once closed is set, which
// flushes anything held back for exactly this reason.
func (sp *subProcessor) drainReady() {
	for {
		sp.mu.Lock()
		seg, ok := sp.segments[sp.nextYield]
		if !ok {
			sp.mu.Unlock()
			return
		}
		if !sp.closed && sp.nextYield == sp.nextSubmit-1 {
			sp.mu.Unlock()
			return
		}
		isFinal := sp.closed && sp.nextYield == sp.nextSubmit-1
		idx := sp.nextYield
		sp.nextYield++
		if seg.err == nil {
			sp.wordCountTotal += int64(len(strings.Fields(seg.text)))
			sp.allAudio = append(sp.allAudio, seg.result.Audio)
			sp.durations = append(sp.durations, seg.result.DurationMS)
		}
		sp.mu.Unlock()

		sp.onEmit(segmentEmission{
			index:      idx,
			text:       seg.text,
			audio:      seg.result.Audio,
			durationMS: seg.result.DurationMS,
			isFinal:    isFinal,
			ok:         seg.err == nil,
		})
	}
}

// Wait blocks until every submitted segment has completed synthesis and
// been drained through onEmit.
func (sp *subProcessor) Wait() {
	sp.wg.Wait()
}

// Finalize returns the part's successful segment count, concatenated audio
// bytes, per-segment durations, and total spoken word count, once Wait has
// returned.
func (sp *subProcessor) Finalize() (segmentCount int, audio [][]byte, durations []int64, wordCount int64) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.allAudio), sp.allAudio, sp.durations, sp.wordCountTotal
}
