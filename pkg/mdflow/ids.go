// Package mdflow holds the wire and persistence types shared by the run
// engine's components: parsed blocks, outline/progress entities, and the
// RunMarkdownFlow event stream.
package mdflow

import "github.com/google/uuid"

// NewBID mints a 36-char opaque business id. Callers must never depend on
// auto-increment ids for cross-service identity (see §6.3).
func NewBID() string {
	return uuid.NewString()
}
