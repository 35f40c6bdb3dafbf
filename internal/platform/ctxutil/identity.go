package ctxutil

import "context"

type identityKey struct{}

// IdentitySource records how the caller's identity was established.
type IdentitySource string

const (
	IdentityFromToken  IdentitySource = "token"
	IdentityFromHeader IdentitySource = "header"
)

// Identity is the caller as established by the auth middleware.
type Identity struct {
	ExternalID    string
	Email         string
	EmailVerified bool
	Source        IdentitySource
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) *Identity {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return id
	}
	return nil
}
