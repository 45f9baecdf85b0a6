// Package auth describes API key principals and carries them through a context.
package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeAdmin grants back-office booking management.
const ScopeAdmin = "admin"

// ErrUnauthenticated is returned when a request carries no valid principal.
var ErrUnauthenticated = errors.New("unauthenticated")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID         string
	KeyHash    string
	Name       string
	CustomerID string
	Scopes     []string
}

// Principal is the caller a request acts on behalf of.
type Principal struct {
	KeyID      string
	CustomerID string
	Scopes     []string
}

// PrincipalFrom converts stored key info into a request principal.
func PrincipalFrom(info *APIKeyInfo) Principal {
	return Principal{KeyID: info.ID, CustomerID: info.CustomerID, Scopes: info.Scopes}
}

// IsAdmin reports whether the principal holds the admin scope.
func (p Principal) IsAdmin() bool {
	return slices.Contains(p.Scopes, ScopeAdmin)
}

// CanAccess reports whether the principal may act on a resource owned by customerID.
func (p Principal) CanAccess(customerID string) bool {
	return p.IsAdmin() || (p.CustomerID != "" && p.CustomerID == customerID)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}
