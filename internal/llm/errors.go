package llm

import (
	"errors"
	"fmt"
)

// Domain error kinds raised by the provider abstraction (§7).
var (
	ErrModelNotSupported         = errors.New("modelNotSupported")
	ErrSpecifiedLLMNotConfigured = errors.New("specifiedLlmNotConfigured")
)

// RequestFailedError wraps a provider-level failure with the model name and
// the provider's own message, per §4.5's requestFailed domain error.
type RequestFailedError struct {
	Model    string
	Provider string
	Err      error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("requestFailed: provider %s model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

// ModelNotSupportedError names the unresolved alias.
type ModelNotSupportedError struct {
	Alias string
}

func (e *ModelNotSupportedError) Error() string {
	return fmt.Sprintf("modelNotSupported: %q", e.Alias)
}

func (e *ModelNotSupportedError) Unwrap() error { return ErrModelNotSupported }
