// Package outline implements the Outline Tree & Progress Store (C2) and
// the Outline Walker (C4): read access to StructTree snapshots, CRUD for
// LearnProgressRecord/LearnGeneratedBlock, and the pure tree-traversal
// function that computes outline-boundary transitions.
package outline

import "github.com/haasonsaas/mdflow-engine/pkg/mdflow"

// UpdateKind names an outline-boundary transition produced by the Walker.
type UpdateKind string

const (
	LeafStart     UpdateKind = "LEAF_START"
	NodeStart     UpdateKind = "NODE_START"
	LeafCompleted UpdateKind = "LEAF_COMPLETED"
	NodeCompleted UpdateKind = "NODE_COMPLETED"
)

// Update is one outline-tree transition: a client OUTLINE_ITEM_UPDATE event
// plus the progress-record mutation the caller must apply (§4.4).
type Update struct {
	OutlineBID  string
	Title       string
	Kind        UpdateKind
	HasChildren bool
}

// index resolves a StructTree's outline nodes by business id and tracks
// parent links, built once per Walker call.
type index struct {
	byBID  map[string]*mdflow.StructNode
	parent map[string]*mdflow.StructNode
}

func buildIndex(tree *mdflow.StructTree) *index {
	idx := &index{
		byBID:  make(map[string]*mdflow.StructNode),
		parent: make(map[string]*mdflow.StructNode),
	}
	if tree == nil || tree.Root == nil {
		return idx
	}
	var walk func(node, parent *mdflow.StructNode)
	walk = func(node, parent *mdflow.StructNode) {
		if node.Type != mdflow.StructBlock {
			idx.byBID[node.BID] = node
			if parent != nil {
				idx.parent[node.BID] = parent
			}
		}
		for _, child := range node.Children {
			walk(child, node)
		}
	}
	walk(tree.Root, nil)
	return idx
}

func (idx *index) pathFromRoot(bid string) []*mdflow.StructNode {
	node, ok := idx.byBID[bid]
	if !ok {
		return nil
	}
	var path []*mdflow.StructNode
	for node != nil {
		path = append([]*mdflow.StructNode{node}, path...)
		node = idx.parent[node.BID]
	}
	return path
}

func hasChildren(node *mdflow.StructNode) bool {
	return len(node.Children) > 0
}

// AncestorBIDs returns leafBID's outline ancestors, nearest first (the leaf
// itself, then its parent outline, ..., up to but excluding the Shifu
// root). Used by the Block Runner to walk the LLM-settings ancestor chain
// (§4.3.1-2).
func AncestorBIDs(tree *mdflow.StructTree, leafBID string) []string {
	idx := buildIndex(tree)
	path := idx.pathFromRoot(leafBID)

	var bids []string
	for i := len(path) - 1; i >= 0; i-- {
		node := path[i]
		if node.Type != mdflow.StructOutline {
			continue
		}
		bids = append(bids, node.BID)
	}
	return bids
}

// EnterLeaf computes the updates for entering leafBID: if the leaf's
// current status is NOT_STARTED (or it has no progress row yet), every
// non-hidden ancestor on the root→leaf path gets a NODE_START and the leaf
// itself gets a LEAF_START. Otherwise it returns nil: the leaf was already
// visited and no transition fires.
func EnterLeaf(tree *mdflow.StructTree, progress map[string]*mdflow.LearnProgressRecord, leafBID string) []Update {
	status := mdflow.StatusNotStarted
	if rec, ok := progress[leafBID]; ok {
		status = rec.Status
	}
	if status != mdflow.StatusNotStarted {
		return nil
	}

	idx := buildIndex(tree)
	path := idx.pathFromRoot(leafBID)

	var updates []Update
	for _, node := range path {
		if node.Type != mdflow.StructOutline || node.Hidden {
			continue
		}
		kind := NodeStart
		if node.BID == leafBID {
			kind = LeafStart
		}
		updates = append(updates, Update{OutlineBID: node.BID, Title: node.Title, Kind: kind, HasChildren: hasChildren(node)})
	}
	return updates
}

// AdvanceOnCompletion computes the updates for finishing leafBID: the leaf
// gets a LEAF_COMPLETED, then the walker climbs toward the root. At each
// level, if a non-hidden sibling follows the node just completed, that
// sibling's leftmost descendant chain is entered (NODE_START for each
// internal node, LEAF_START for the leaf reached); otherwise the parent
// gets a NODE_COMPLETED and the climb continues one level up.
func AdvanceOnCompletion(tree *mdflow.StructTree, leafBID string) []Update {
	idx := buildIndex(tree)
	leaf, ok := idx.byBID[leafBID]
	if !ok {
		return nil
	}

	updates := []Update{{OutlineBID: leaf.BID, Title: leaf.Title, Kind: LeafCompleted, HasChildren: hasChildren(leaf)}}

	current := leaf
	for {
		parent := idx.parent[current.BID]
		if parent == nil {
			return updates
		}

		nextSibling := nextNonHiddenSibling(parent, current)
		if nextSibling == nil {
			if parent.Type == mdflow.StructOutline && !parent.Hidden {
				updates = append(updates, Update{OutlineBID: parent.BID, Title: parent.Title, Kind: NodeCompleted, HasChildren: hasChildren(parent)})
			}
			current = parent
			continue
		}

		updates = append(updates, leftmostChain(nextSibling)...)
		return updates
	}
}

func nextNonHiddenSibling(parent, after *mdflow.StructNode) *mdflow.StructNode {
	pos := -1
	for i, child := range parent.Children {
		if child == after {
			pos = i
			break
		}
	}
	if pos == -1 {
		return nil
	}
	for j := pos + 1; j < len(parent.Children); j++ {
		sibling := parent.Children[j]
		if sibling.Type == mdflow.StructOutline && !sibling.Hidden {
			return sibling
		}
	}
	return nil
}

// leftmostChain walks from node down its first non-hidden outline child at
// each level until a leaf is reached, emitting NODE_START for every
// internal node and a final LEAF_START for the leaf.
func leftmostChain(node *mdflow.StructNode) []Update {
	var updates []Update
	for {
		if node.IsLeaf() {
			updates = append(updates, Update{OutlineBID: node.BID, Title: node.Title, Kind: LeafStart, HasChildren: hasChildren(node)})
			return updates
		}
		updates = append(updates, Update{OutlineBID: node.BID, Title: node.Title, Kind: NodeStart, HasChildren: hasChildren(node)})

		var next *mdflow.StructNode
		for _, child := range node.Children {
			if child.Type == mdflow.StructOutline && !child.Hidden {
				next = child
				break
			}
		}
		if next == nil {
			return updates
		}
		node = next
	}
}
