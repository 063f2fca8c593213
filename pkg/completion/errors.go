package completion

import (
	"errors"
	"fmt"
)

// ErrModelNotLoaded is returned when a completion is requested before any
// backend has been configured, or after the backend was torn down. Callers
// treat it as "silently do nothing", not as a fault.
var ErrModelNotLoaded = errors.New("completion: model not loaded")

// LoadError reports that a backend could not be constructed or its model
// could not be initialised.
type LoadError struct {
	// Provider is the backend name, e.g. "ollama" or "openai".
	Provider string

	// Model is the model identifier that failed to load.
	Model string

	// Err is the underlying cause.
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("completion: load %s model %q: %v", e.Provider, e.Model, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// GenerationError reports that a request reached the backend but no usable
// reply came back.
type GenerationError struct {
	// Reason is a short human-readable description, e.g. "empty choices".
	Reason string

	// Err is the underlying cause, may be nil.
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion: generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("completion: generation failed: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }
