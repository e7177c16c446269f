package service

import "context"

// Role is the capability a caller authenticated with
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleBusiness Role = "business"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleConsumer || r == RoleBusiness
}

// Caller identifies the authenticated principal of a request. It is passed
// explicitly into every operation; the engine never looks up a session.
type Caller struct {
	ID   string
	Role Role
}

type callerKey struct{}

// WithCaller attaches c to ctx
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached to ctx, if any
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.ID != ""
}

func (c Caller) require(role Role) error {
	if c.ID == "" {
		return ErrAuthRequired
	}
	if c.Role != role {
		return ErrForbidden
	}
	return nil
}
