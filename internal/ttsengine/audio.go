package ttsengine

// joinAudio concatenates a part's in-order segment byte slices into a single
// payload. No MP3-frame-aware concatenation library appears anywhere in the
// retrieved corpus, so this stays a straight byte concatenation (valid for
// MP3: consecutive frame streams play back correctly when simply
// appended) — the "best-effort joiner" the spec allows when a sophisticated
// audio library is unavailable.
func joinAudio(segments [][]byte) []byte {
	total := 0
	for _, s := range segments {
		total += len(s)
	}
	out := make([]byte, 0, total)
	for _, s := range segments {
		out = append(out, s...)
	}
	return out
}

// sumDurationsMS is the duration fallback used when the joined payload
// cannot be probed for its real duration (§4.7.3 step 3) — since none of
// the wired TTS providers report per-segment duration, this is always the
// path taken in practice, documented as the duration source everywhere it
// is used.
func sumDurationsMS(durations []int64) int64 {
	var total int64
	for _, d := range durations {
		total += d
	}
	return total
}
