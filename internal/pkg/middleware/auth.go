package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/autopeer-io/telehub/internal/pkg/errno"
	"github.com/autopeer-io/telehub/pkg/options"
)

// Claims is the authenticated principal of a request.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

type claimsKey struct{}

func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HS256 bearer tokens issued by the session service.
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

func NewValidator(opts *options.AuthOptions) (*Validator, error) {
	if opts == nil || opts.Secret == "" {
		return nil, errors.New("auth: secret is required")
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		popts = append(popts, jwt.WithAudience(opts.Audience))
	}

	return &Validator{secret: []byte(opts.Secret), parser: jwt.NewParser(popts...)}, nil
}

// Validate parses and verifies a raw token and returns its claims.
func (v *Validator) Validate(raw string) (*Claims, error) {
	tc := &tokenClaims{}
	token, err := v.parser.ParseWithClaims(raw, tc, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: token invalid")
	}
	if tc.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}

	return &Claims{UserID: tc.Subject, Email: tc.Email, Role: tc.Role}, nil
}

// Authenticate rejects requests without a valid bearer token and stores the
// claims in the request context. Browsers cannot set headers on a websocket
// handshake, so an access_token query parameter is accepted for upgrades.
func Authenticate(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(w, r, errno.ErrUnauthenticated)
				return
			}

			claims, err := v.Validate(token)
			if err != nil {
				Logger(r.Context()).Debug("Rejected bearer token", "error", err.Error())
				WriteError(w, r, errno.ErrUnauthenticated)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
