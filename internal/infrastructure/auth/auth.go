// Package auth resolves the user and tenant a request acts as.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the resolved caller. Both ids are always set.
type Identity struct {
	UserID   string   `json:"userId"`
	TenantID string   `json:"tenantId"`
	Roles    []string `json:"roles,omitempty"`
}

func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Authenticator interface {
	// Authenticate returns ErrUnauthenticated (possibly wrapped) when the request
	// carries no usable credential.
	Authenticate(r *http.Request) (Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
