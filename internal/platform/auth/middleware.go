package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultLocaleClaim   = "locale"
	defaultVerifyTimeout = 5 * time.Second
)

// ErrTokenExpired signals that the provided Firebase ID token has expired.
var ErrTokenExpired = errors.New("auth: firebase id token expired")

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator wires Firebase token verification and capability checks into HTTP middleware.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
	timeout   time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds each token verification.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the bearer token and stores the Identity on the request context.
// Callers without a recognised role claim are treated as customers.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			verifyCtx, cancel := context.WithTimeout(r.Context(), a.timeout)
			token, err := a.verifier.VerifyIDToken(verifyCtx, tokenStr)
			cancel()
			if err != nil {
				if errors.Is(err, ErrTokenExpired) || firebaseauth.IsIDTokenExpired(err) {
					respondAuthError(r.Context(), w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
					return
				}
				if firebaseauth.IsIDTokenRevoked(err) || firebaseauth.IsUserDisabled(err) {
					respondAuthError(r.Context(), w, http.StatusUnauthorized, "token_revoked", "firebase session revoked")
					return
				}
				respondAuthError(r.Context(), w, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
				return
			}

			identity := &Identity{
				UID:    token.UID,
				Email:  claimString(token.Claims, "email"),
				Name:   claimString(token.Claims, "name"),
				Locale: claimString(token.Claims, defaultLocaleClaim),
				Roles:  rolesFromClaims(token.Claims, a.roleClaim),
				token:  token,
			}
			if len(identity.Roles) == 0 {
				identity.Roles = []domain.Role{domain.RoleCustomer}
			}
			if reporter, ok := w.(IdentityReporter); ok {
				reporter.SetIdentity(identity)
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireCapability rejects authenticated callers whose roles do not grant capability.
// It must run after RequireFirebaseAuth.
func RequireCapability(capability domain.Capability) func(http.Handler) http.Handler {
	return RequireAnyCapability(capability)
}

// RequireAnyCapability admits callers holding at least one of capabilities. Services narrow
// what a partial grant, such as products:manage_own, may touch.
func RequireAnyCapability(capabilities ...domain.Capability) func(http.Handler) http.Handler {
	names := make([]string, 0, len(capabilities))
	for _, capability := range capabilities {
		names = append(names, string(capability))
	}
	missing := "missing capability " + strings.Join(names, " or ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				respondAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			for _, capability := range capabilities {
				if identity.Can(capability) {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondAuthError(r.Context(), w, http.StatusForbidden, "forbidden", missing)
		})
	}
}

// rolesFromClaims accepts a single role string, a list of roles, or a map of role→bool.
// Unknown roles are dropped.
func rolesFromClaims(claims map[string]any, key string) []domain.Role {
	var raw []string
	switch v := claims[key].(type) {
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case map[string]any:
		for name, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				raw = append(raw, name)
			}
		}
	}

	roles := make([]domain.Role, 0, len(raw))
	for _, value := range raw {
		role, ok := domain.ParseRole(value)
		if !ok {
			continue
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func claimString(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
