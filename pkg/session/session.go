// Package session carries the identity of the caller through every
// vault operation. There is deliberately no package-level "current
// user"; the accessor is always an explicit value, optionally threaded
// through a context by the presentation layer.
package session

import "context"

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string
	Type string // "patient", "hospital", "insurer", ...
}

// IsZero reports whether the actor carries no identity.
func (a Actor) IsZero() bool {
	return a.ID == "" && a.Type == ""
}

type ctxKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext extracts the actor previously stored with WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
