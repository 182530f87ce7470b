package auth

import (
	"context"
	"slices"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/jara-commerce/api/internal/domain"
)

// Identity captures the authenticated end user extracted from a Firebase ID token.
type Identity struct {
	UID    string
	Email  string
	Name   string
	Roles  []domain.Role
	Locale string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role domain.Role) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// Can reports whether any of the identity's roles grants capability.
func (i *Identity) Can(capability domain.Capability) bool {
	return i != nil && domain.HasCapability(i.Roles, capability)
}

// IdentityReporter is implemented by response writers that want to learn the resolved caller,
// such as the request logger.
type IdentityReporter interface {
	SetIdentity(identity *Identity)
}

type contextKey string

const identityContextKey contextKey = "github.com/jara-commerce/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
