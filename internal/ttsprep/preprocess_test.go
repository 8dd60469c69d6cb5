package ttsprep

import "testing"

func TestPreprocessForTTSStripsFencedCode(t *testing.T) {
	got := PreprocessForTTS("intro\n```go\nfmt.Println(1)\n```\noutro")
	if got != "intro\noutro" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestPreprocessForTTSKeepsLinkText(t *testing.T) {
	got := PreprocessForTTS("see [the docs](http://example.com) for more")
	if got != "see the docs for more" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestPreprocessForTTSStripsHeadersAndEmphasis(t *testing.T) {
	got := PreprocessForTTS("# Title\n\n**bold** and _italic_ text")
	if got != "Title\n\nbold and italic text" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestPreprocessForTTSStripsIncompleteTail(t *testing.T) {
	got := PreprocessForTTS("finished sentence. <svg><rect/>")
	if got != "finished sentence." {
		t.Fatalf("expected incomplete tail stripped, got %q", got)
	}
}

func TestPreprocessForTTSFlattensTables(t *testing.T) {
	got := PreprocessForTTS("| name | age |\n| --- | --- |\n| Ada | 30 |\n")
	want := "• name: Ada | age: 30"
	if got != want {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestPreprocessForTTSIsIdempotent(t *testing.T) {
	inputs := []string{
		"# Heading\n\n**bold** [link](url) and a table:\n| a | b |\n| --- | --- |\n| 1 | 2 |\n",
		"plain prose with no markup at all.",
		"<div>wrapped <b>content</b></div>",
	}
	for _, in := range inputs {
		once := PreprocessForTTS(in)
		twice := PreprocessForTTS(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestHasIncompleteBlockDelegatesToVisualParser(t *testing.T) {
	if !HasIncompleteBlock("some text ```go\nfmt.Println(1)") {
		t.Fatal("expected incomplete fence to be detected")
	}
	if HasIncompleteBlock("finished prose.") {
		t.Fatal("expected complete prose to not be flagged")
	}
}
