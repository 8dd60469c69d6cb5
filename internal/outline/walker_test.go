package outline

import (
	"testing"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// buildTestTree builds:
// shifu
//   ch1 (node)
//     leaf1a (leaf)
//     leaf1b (leaf)
//   ch2 (leaf)
func buildTestTree() *mdflow.StructTree {
	leaf1a := &mdflow.StructNode{BID: "leaf1a", Type: mdflow.StructOutline, Title: "1a"}
	leaf1b := &mdflow.StructNode{BID: "leaf1b", Type: mdflow.StructOutline, Title: "1b"}
	ch1 := &mdflow.StructNode{BID: "ch1", Type: mdflow.StructOutline, Title: "Chapter 1", Children: []*mdflow.StructNode{leaf1a, leaf1b}}
	ch2 := &mdflow.StructNode{BID: "ch2", Type: mdflow.StructOutline, Title: "Chapter 2"}
	root := &mdflow.StructNode{BID: "shifu", Type: mdflow.StructShifu, Title: "Course", Children: []*mdflow.StructNode{ch1, ch2}}
	return &mdflow.StructTree{ShifuBID: "shifu", Root: root}
}

func TestEnterLeafEmitsAncestorChain(t *testing.T) {
	tree := buildTestTree()
	progress := map[string]*mdflow.LearnProgressRecord{}

	updates := EnterLeaf(tree, progress, "leaf1a")
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates (ch1 NODE_START, leaf1a LEAF_START), got %+v", updates)
	}
	if updates[0].OutlineBID != "ch1" || updates[0].Kind != NodeStart {
		t.Fatalf("expected ch1 NODE_START first, got %+v", updates[0])
	}
	if updates[1].OutlineBID != "leaf1a" || updates[1].Kind != LeafStart {
		t.Fatalf("expected leaf1a LEAF_START second, got %+v", updates[1])
	}
}

func TestEnterLeafSkipsAlreadyStartedLeaf(t *testing.T) {
	tree := buildTestTree()
	progress := map[string]*mdflow.LearnProgressRecord{
		"leaf1a": {Status: mdflow.StatusInProgress},
	}
	updates := EnterLeaf(tree, progress, "leaf1a")
	if updates != nil {
		t.Fatalf("expected no updates for an already-started leaf, got %+v", updates)
	}
}

func TestAdvanceOnCompletionMovesToNextSiblingLeaf(t *testing.T) {
	tree := buildTestTree()
	updates := AdvanceOnCompletion(tree, "leaf1a")
	if len(updates) != 2 {
		t.Fatalf("expected LEAF_COMPLETED + LEAF_START, got %+v", updates)
	}
	if updates[0].OutlineBID != "leaf1a" || updates[0].Kind != LeafCompleted {
		t.Fatalf("expected leaf1a LEAF_COMPLETED, got %+v", updates[0])
	}
	if updates[1].OutlineBID != "leaf1b" || updates[1].Kind != LeafStart {
		t.Fatalf("expected leaf1b LEAF_START, got %+v", updates[1])
	}
}

func TestAdvanceOnCompletionClimbsToNodeCompletedThenNextChapter(t *testing.T) {
	tree := buildTestTree()
	updates := AdvanceOnCompletion(tree, "leaf1b")
	if len(updates) != 3 {
		t.Fatalf("expected LEAF_COMPLETED, NODE_COMPLETED, LEAF_START, got %+v", updates)
	}
	if updates[0].OutlineBID != "leaf1b" || updates[0].Kind != LeafCompleted {
		t.Fatalf("unexpected first update: %+v", updates[0])
	}
	if updates[1].OutlineBID != "ch1" || updates[1].Kind != NodeCompleted {
		t.Fatalf("unexpected second update: %+v", updates[1])
	}
	if updates[2].OutlineBID != "ch2" || updates[2].Kind != LeafStart {
		t.Fatalf("unexpected third update: %+v", updates[2])
	}
}

func TestAdvanceOnCompletionLastLeafStopsAtRoot(t *testing.T) {
	tree := buildTestTree()
	updates := AdvanceOnCompletion(tree, "ch2")
	if len(updates) != 1 {
		t.Fatalf("expected only LEAF_COMPLETED for the final leaf, got %+v", updates)
	}
	if updates[0].OutlineBID != "ch2" || updates[0].Kind != LeafCompleted {
		t.Fatalf("unexpected update: %+v", updates[0])
	}
}

func TestEnterLeafSkipsHiddenAncestors(t *testing.T) {
	leaf := &mdflow.StructNode{BID: "leaf", Type: mdflow.StructOutline, Title: "Leaf"}
	hiddenCh := &mdflow.StructNode{BID: "hidden-ch", Type: mdflow.StructOutline, Title: "Hidden", Hidden: true, Children: []*mdflow.StructNode{leaf}}
	root := &mdflow.StructNode{BID: "shifu", Type: mdflow.StructShifu, Children: []*mdflow.StructNode{hiddenCh}}
	tree := &mdflow.StructTree{ShifuBID: "shifu", Root: root}

	updates := EnterLeaf(tree, map[string]*mdflow.LearnProgressRecord{}, "leaf")
	if len(updates) != 1 {
		t.Fatalf("expected only the leaf's own update, got %+v", updates)
	}
	if updates[0].OutlineBID != "leaf" {
		t.Fatalf("unexpected update: %+v", updates[0])
	}
}
