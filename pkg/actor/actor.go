// Package actor identifies the user performing an action. The surrounding
// application authenticates requests at its gateway and forwards the acting
// user in headers; this package carries that identity through context for
// ledger attribution.
package actor

import (
	"context"
	"net/http"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// Name is the actor's display name
	Name string `json:"name"`

	// Role is the actor's role (Doctor, Nurse, Pharmacist, Admin)
	Role string `json:"role,omitempty"`
}

// System is the actor used for operations not triggered by a user.
var System = &Actor{ID: "system", Name: "system"}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	if a.Name == "" {
		return a.ID
	}
	return a.Name + " (" + a.ID + ")"
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if a, ok := ctx.Value(actorContextKey).(*Actor); ok {
		return a
	}
	return nil
}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, a)
}

// Middleware extracts the acting user from the gateway headers and attaches
// it to the request context. Requests without an X-User-ID header proceed
// without an actor; handlers that require attribution reject those.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		a := &Actor{
			ID:   userID,
			Name: r.Header.Get("X-User-Name"),
			Role: r.Header.Get("X-User-Role"),
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
	})
}
