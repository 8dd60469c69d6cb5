package markdownflow

import (
	"testing"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

func TestParsePlainContent(t *testing.T) {
	blocks := Parse("Hello **world**.")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Type != mdflow.BlockContent {
		t.Fatalf("expected CONTENT block, got %s", blocks[0].Type)
	}
	if blocks[0].Content != "Hello **world**." {
		t.Fatalf("unexpected content: %q", blocks[0].Content)
	}
}

func TestParseFreeformInteraction(t *testing.T) {
	blocks := Parse("?[%{{lang}}...your favourite language?]")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	b := blocks[0]
	if b.Type != mdflow.BlockInteraction {
		t.Fatalf("expected INTERACTION block, got %s", b.Type)
	}
	if b.Interaction.Variable != "lang" {
		t.Fatalf("unexpected variable: %q", b.Interaction.Variable)
	}
	if b.Interaction.Question != "your favourite language?" {
		t.Fatalf("unexpected question: %q", b.Interaction.Question)
	}
}

func TestParseButtonInteraction(t *testing.T) {
	blocks := Parse("?[Pay now//_sys_pay||Cancel//_sys_cancel]")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	b := blocks[0].Interaction
	if len(b.Buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(b.Buttons))
	}
	if b.Buttons[0].Value != "_sys_pay" || b.Buttons[1].Value != "_sys_cancel" {
		t.Fatalf("unexpected button values: %+v", b.Buttons)
	}
}

func TestParseContentAroundInteraction(t *testing.T) {
	doc := "Intro text.\n?[A//a||B//b]\nOutro text."
	blocks := Parse(doc)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Type != mdflow.BlockContent || blocks[2].Type != mdflow.BlockContent {
		t.Fatalf("expected content before/after, got %+v", blocks)
	}
	if blocks[1].Type != mdflow.BlockInteraction {
		t.Fatalf("expected interaction in the middle, got %s", blocks[1].Type)
	}
}

func TestParseSectionBreak(t *testing.T) {
	doc := "First section.\n===\nSecond section."
	blocks := Parse(doc)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
}

func TestParseMalformedInteractionDegradesToContent(t *testing.T) {
	blocks := Parse("?[]")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Type != mdflow.BlockContent {
		t.Fatalf("expected malformed interaction to degrade to CONTENT, got %s", blocks[0].Type)
	}
	if blocks[0].Content != "?[]" {
		t.Fatalf("expected raw text preserved, got %q", blocks[0].Content)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	doc := "A.\n?[%{{x}}...q?]\nB.\n===\nC."
	first := Parse(doc)
	second := Parse(doc)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic block count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Content != second[i].Content || first[i].Type != second[i].Type {
			t.Fatalf("non-deterministic block at index %d", i)
		}
	}
}
