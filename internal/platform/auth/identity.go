package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/homequote/api/internal/platform/requestctx"
)

// Role constants carried in the Firebase "role" custom claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity captures the authenticated principal details extracted from a Firebase ID token.
type Identity struct {
	UID    string
	Email  string
	Roles  []string
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

// PrimaryRole returns the first role, which is the one reported to clients.
func (i *Identity) PrimaryRole() string {
	if i == nil || len(i.Roles) == 0 {
		return ""
	}
	return i.Roles[0]
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type contextKey string

const identityContextKey contextKey = "github.com/homequote/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers and reports the
// uid to the request logger.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity != nil {
		requestctx.SetCaller(ctx, identity.UID)
	}
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
