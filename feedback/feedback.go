// Package feedback provides the pluggable feedback generation capability used
// by the review submission service. The active generator is selected by
// configuration; the default is the deterministic template generator.
package feedback

import "context"

// Generator produces review feedback for a piece of code. Implementations may
// fail (an upstream analysis engine can time out); callers must not assume
// otherwise.
type Generator interface {
	Generate(ctx context.Context, language, code string) (string, error)
}

// New returns the generator registered under the given name.
// Unknown names fall back to the template generator.
func New(name string) Generator {
	switch name {
	case "template", "":
		return NewTemplate()
	default:
		return NewTemplate()
	}
}
