// Package profile persists learner variable bindings captured from
// INTERACTION answers (the `user_profile` the Block Runner substitutes into
// CONTENT block prompts and the MarkdownFlow.process COMPLETE result
// writes back).
package profile

import "context"

// Store is the read/write surface the Block Runner uses for a learner's
// variable bindings within one Shifu.
type Store interface {
	// GetAll returns every variable currently bound for (userBID, shifuBID).
	GetAll(ctx context.Context, userBID, shifuBID string) (map[string]string, error)

	// Set upserts one variable binding.
	Set(ctx context.Context, userBID, shifuBID, name, value string) error
}
