package visual

import "testing"

func TestFindEarliestCompleteVisualSVG(t *testing.T) {
	text := "before <svg viewBox=\"0 0 1 1\"><rect/></svg> after"
	m, ok := FindEarliestCompleteVisual(text)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Kind != KindSVG {
		t.Fatalf("expected svg, got %s", m.Kind)
	}
}

func TestFindEarliestCompleteVisualMermaidVsCode(t *testing.T) {
	text := "```mermaid\ngraph TD;\nA-->B;\n```"
	m, ok := FindEarliestCompleteVisual(text)
	if !ok || m.Kind != KindMermaid {
		t.Fatalf("expected mermaid, got %+v ok=%v", m, ok)
	}

	text2 := "```go\nfmt.Println(1)\n```"
	m2, ok2 := FindEarliestCompleteVisual(text2)
	if !ok2 || m2.Kind != KindCode {
		t.Fatalf("expected code, got %+v ok=%v", m2, ok2)
	}
}

func TestFindEarliestCompleteVisualImage(t *testing.T) {
	md := "see ![alt](http://x/y.png) here"
	m, ok := FindEarliestCompleteVisual(md)
	if !ok || m.Kind != KindImage {
		t.Fatalf("expected markdown image, got %+v ok=%v", m, ok)
	}

	htmlImg := `<img src="http://x/y.png"/>`
	m2, ok2 := FindEarliestCompleteVisual(htmlImg)
	if !ok2 || m2.Kind != KindImage {
		t.Fatalf("expected html image, got %+v ok=%v", m2, ok2)
	}
}

func TestFindEarliestCompleteVisualTable(t *testing.T) {
	text := "| a | b |\n| --- | --- |\n| 1 | 2 |\n"
	m, ok := FindEarliestCompleteVisual(text)
	if !ok || m.Kind != KindTable {
		t.Fatalf("expected table, got %+v ok=%v", m, ok)
	}
}

func TestFindEarliestCompleteVisualTableHeaderWithoutSeparatorDoesNotMatch(t *testing.T) {
	text := "| a | b |\nsome other text"
	_, ok := FindEarliestCompleteVisual(text)
	if ok {
		t.Fatal("expected no match for header without separator")
	}
}

func TestFindEarliestCompleteVisualInlineBacktickDoesNotMatch(t *testing.T) {
	text := "use `code` inline, not a fence"
	_, ok := FindEarliestCompleteVisual(text)
	if ok {
		t.Fatal("expected no match for inline backticks")
	}
}

func TestFindEarliestCompleteVisualSingleDollarMathDoesNotMatch(t *testing.T) {
	text := "the value $x$ is small"
	_, ok := FindEarliestCompleteVisual(text)
	if ok {
		t.Fatal("expected no match for single-dollar math")
	}
}

func TestFindEarliestCompleteVisualTieBreakSVGWinsOverCode(t *testing.T) {
	text := "<svg><rect/></svg> and ```code```"
	m, ok := FindEarliestCompleteVisual(text)
	if !ok || m.Kind != KindSVG {
		t.Fatalf("expected svg to win (earlier start), got %+v ok=%v", m, ok)
	}
}

func TestFindEarliestCompleteVisualNestedSVGReturnsOuterToFirstClose(t *testing.T) {
	text := "<svg><svg></svg></svg>"
	m, ok := FindEarliestCompleteVisual(text)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Content != "<svg><svg></svg>" {
		t.Fatalf("expected greedy-to-first-close match, got %q", m.Content)
	}
}

func TestHasIncompleteVisualOddFence(t *testing.T) {
	if !HasIncompleteVisual("some text ```go\nfmt.Println(1)") {
		t.Fatal("expected incomplete fence to be detected")
	}
}

func TestHasIncompleteVisualUnmatchedSVG(t *testing.T) {
	if !HasIncompleteVisual("before <svg><rect/>") {
		t.Fatal("expected unmatched svg open to be detected")
	}
}

func TestHasIncompleteVisualCompleteTextIsNotIncomplete(t *testing.T) {
	if HasIncompleteVisual("just plain finished prose.") {
		t.Fatal("expected complete prose to not be flagged incomplete")
	}
}

func TestHasIncompleteVisualDanglingTableHeader(t *testing.T) {
	if !HasIncompleteVisual("intro text\n| a | b |") {
		t.Fatal("expected dangling table header to be detected")
	}
}

func TestHasIncompleteVisualPartialTagOpen(t *testing.T) {
	if !HasIncompleteVisual("some text <img sr") {
		t.Fatal("expected partial tag open to be detected")
	}
}
