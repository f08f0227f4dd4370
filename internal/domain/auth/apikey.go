// Package auth holds API key identity types shared by the security middleware
// and the storage layer.
package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Scope names known to the API.
const (
	// ScopePlaceOrder allows placing authenticated orders.
	ScopePlaceOrder = "place_order"
	// ScopeAdmin allows back-office operations: coupon CRUD, product CRUD,
	// order status management, listing all orders.
	ScopeAdmin = "admin"
)

// ErrKeyNotFound is returned when no active API key matches the given hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKey holds the identity and permission data for a validated API key. The
// key ID doubles as the user identifier for per-user coupon caps and order
// ownership.
type APIKey struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (k *APIKey) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
}
