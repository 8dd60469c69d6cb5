package mdflow

// BlockType classifies a parsed MarkdownFlow block.
type BlockType string

const (
	BlockContent     BlockType = "CONTENT"
	BlockInteraction BlockType = "INTERACTION"
)

// Button is one choice in an interaction's button set. A Value prefixed with
// "_sys_" names a system button interpreted by the Block Runner rather than
// recorded as a learner variable.
type Button struct {
	Label string
	Value string
}

// IsSystem reports whether the button is a Runner-interpreted control button.
func (b Button) IsSystem() bool {
	return len(b.Value) >= 5 && b.Value[:5] == "_sys_"
}

// Interaction is the parsed shape of an INTERACTION block body:
// "?[" ("%" "{{" var "}}")? ( button ("||" button)* | "..." question ) "]"
type Interaction struct {
	// Variable is the declared variable name, empty if the interaction is
	// purely informational (no variable binding).
	Variable string
	// Buttons holds the parsed choice set; empty for free-form "..." questions.
	Buttons []Button
	// Question is the free-form prompt text for "..." interactions, or the
	// trailing question text that follows a button set.
	Question string
}

// Block is one unit of a parsed MarkdownFlow document. Ephemeral and
// in-memory; never persisted directly (see LearnGeneratedBlock for the
// persisted record of what a block produced).
type Block struct {
	Index       int
	Type        BlockType
	Content     string
	Interaction *Interaction // non-nil only when Type == BlockInteraction
}
