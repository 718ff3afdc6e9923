package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenResolver maps a personal access token to the claims of its owner.
// It returns ErrInvalidToken or ErrTokenExpired for unusable tokens.
type TokenResolver interface {
	ResolveAccessToken(ctx context.Context, token string) (*Claims, error)
}

// Middleware authenticates the Authorization header. "Bearer <jwt>" is a
// session token; "token <pat>" (or a Bearer value carrying the access token
// prefix) is resolved through tokens. Valid claims are stored in the request
// context; requests without credentials pass through anonymously.
func Middleware(authSvc *Service, tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, value, ok := strings.Cut(header, " ")
			value = strings.TrimSpace(value)
			if !ok || value == "" {
				next.ServeHTTP(w, r)
				return
			}

			var (
				claims *Claims
				err    error
			)
			switch {
			case strings.EqualFold(scheme, "token"),
				strings.EqualFold(scheme, "Bearer") && strings.HasPrefix(value, AccessTokenPrefix):
				if tokens == nil {
					err = ErrInvalidToken
					break
				}
				claims, err = tokens.ResolveAccessToken(r.Context(), value)
				if claims != nil {
					claims.AccessToken = true
				}
			case strings.EqualFold(scheme, "Bearer"):
				claims, err = authSvc.ValidateToken(value)
			default:
				next.ServeHTTP(w, r)
				return
			}
			if err != nil || claims == nil {
				msg := `{"error":"invalid token"}`
				if errors.Is(err, ErrTokenExpired) {
					msg = `{"error":"token expired"}`
				}
				http.Error(w, msg, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims retrieves the claims from a request context. Returns nil if unauthenticated.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// RequireAuth is middleware that rejects unauthenticated requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) == nil {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireScope rejects access-token requests whose token lacks the scope
// needed for the method: read for safe methods, write otherwise.
func RequireScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims != nil {
			need := ScopeWrite
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				need = ScopeRead
			}
			if !claims.HasScope(need) {
				http.Error(w, `{"error":"token scope does not permit this request"}`, http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
