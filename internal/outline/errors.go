package outline

import "errors"

// Domain error kinds raised by the Outline Tree & Progress Store (§7).
var (
	ErrNotFound         = errors.New("outline: not found")
	ErrNoActiveProgress = errors.New("outline: no active progress record")
)
