package scripting

import (
	"context"
)

// Engine represents a scripting engine (e.g., JavaScript) used to run
// author-defined field rules.
type Engine interface {
	// Execute executes a script and returns its final value.
	Execute(ctx context.Context, script string) (interface{}, error)

	// Bind exposes a global value to subsequent scripts.
	Bind(name string, value interface{}) error

	// RegisterDOM registers the document model with the engine.
	RegisterDOM(dom DocumentModel) error
}

// DocumentModel exposes the field set to the scripting engine. It provides
// a safe, controlled API for scripts to interact with the document.
type DocumentModel interface {
	// GetField returns a field by ID.
	GetField(id string) (FieldProxy, error)

	// Progress returns the current required-field completion percentage.
	Progress() int

	// Alert surfaces a message (if supported by the host).
	Alert(message string)
}

// FieldProxy represents a field exposed to scripts.
type FieldProxy interface {
	GetValue() interface{}
	SetValue(value interface{})
}
