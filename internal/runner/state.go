// Package runner implements the Block Runner (C3): the central state
// machine that advances one learner through one outline leaf's blocks,
// emitting RunMarkdownFlow events as it goes.
package runner

// RunType names whether the next block expects learner input or is about
// to emit output.
type RunType string

const (
	RunInput  RunType = "INPUT"
	RunOutput RunType = "OUTPUT"
)

// InputType names how to interpret the current Input payload.
type InputType string

const (
	InputNormal   InputType = "normal"
	InputAsk      InputType = "ask"
	InputContinue InputType = "continue"
)

// Input is the learner-submitted payload for one Run call: either a plain
// string (maps to the interaction's declared variable) or a set of
// variable-to-value-list pairs.
type Input struct {
	Text   string
	Values map[string][]string
}

// IsEmpty reports whether no input payload was supplied (the first call
// against a pending interaction, or a "continue" step).
func (in Input) IsEmpty() bool {
	return in.Text == "" && len(in.Values) == 0
}

// Normalise turns Input into the {variable: [values]} shape §4.3.3a
// describes: a plain string maps to {declaredVariable: [string]}, a
// pre-shaped map is kept with empty/nil entries filtered.
func (in Input) Normalise(declaredVariable string) map[string][]string {
	if in.Text != "" {
		if declaredVariable == "" {
			return map[string][]string{}
		}
		return map[string][]string{declaredVariable: {in.Text}}
	}
	out := make(map[string][]string, len(in.Values))
	for k, values := range in.Values {
		var filtered []string
		for _, v := range values {
			if v != "" {
				filtered = append(filtered, v)
			}
		}
		if len(filtered) > 0 {
			out[k] = filtered
		}
	}
	return out
}

// State is one Run call's working state: it is seeded from the progress
// record and the caller's request, mutated as the call advances, and
// discarded (or persisted back onto the progress record) when Run returns.
type State struct {
	RunType      RunType
	CanContinue  bool
	InputType    InputType
	Input        Input
	LastPosition int

	ProgressRecordBID string
	BlockPosition      int
}
