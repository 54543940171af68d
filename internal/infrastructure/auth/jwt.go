package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const DefaultTenantHeader = "X-Tenant-ID"

// Claims carries the user in "sub", the tenant in "tenant_id" and optional roles.
type Claims struct {
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 bearer tokens. The tenant comes from the token
// only; a tenant header, when sent, must name the same tenant.
type JWTAuthenticator struct {
	secret       []byte
	tenantHeader string
	parser       *jwt.Parser
}

func NewJWTAuthenticator(secret, tenantHeader string) *JWTAuthenticator {
	if tenantHeader == "" {
		tenantHeader = DefaultTenantHeader
	}
	return &JWTAuthenticator{
		secret:       []byte(secret),
		tenantHeader: tenantHeader,
		parser:       jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	raw := BearerToken(r)
	if raw == "" {
		return Identity{}, errors.Wrap(ErrUnauthenticated, "missing bearer token")
	}

	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, errors.Wrapf(ErrUnauthenticated, "invalid token: %v", err)
	}

	id := Identity{UserID: claims.Subject, TenantID: claims.TenantID, Roles: claims.Roles}
	if id.UserID == "" || id.TenantID == "" {
		return Identity{}, errors.Wrap(ErrUnauthenticated, "token does not resolve to a user and tenant")
	}
	if h := r.Header.Get(a.tenantHeader); h != "" && h != id.TenantID {
		return Identity{}, errors.Wrapf(ErrUnauthenticated, "tenant %q is not the token's tenant", h)
	}
	return id, nil
}

// Sign issues a token for id that expires after ttl. Zero ttl means no expiry.
func (a *JWTAuthenticator) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: id.TenantID,
		Roles:    id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
