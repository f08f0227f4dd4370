package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"storefront-api/internal/domain/auth"
)

type principalKey struct{}

// PrincipalFromContext returns the API key authenticated for this request,
// or nil for unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *auth.APIKey {
	p, _ := ctx.Value(principalKey{}).(*auth.APIKey)
	return p
}

// Security authenticates requests via HMAC-SHA256 hashed API keys and
// enforces scopes.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given API key repository and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// Authenticate resolves the request's API key and stores the principal in the
// context. Requests without a valid key get 401.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		computed := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(computed))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already matched on the hash.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated requests whose key lacks the scope.
func (s *Security) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "API key required")
				return
			}
			if !p.HasScope(scope) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractKey accepts either "Authorization: Bearer <key>" or the legacy
// api_key header.
func extractKey(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if key, ok := strings.CutPrefix(authz, "Bearer "); ok {
			return strings.TrimSpace(key)
		}
	}
	return r.Header.Get("api_key")
}
