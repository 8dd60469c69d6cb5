package ttsengine

import (
	"context"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// AudioStore persists finalized LearnGeneratedAudio rows.
type AudioStore interface {
	InsertGeneratedAudio(ctx context.Context, audio *mdflow.LearnGeneratedAudio) error
}
