// Package identity verifies bearer tokens issued by the account service.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"huddle/pkg/types"
)

var (
	ErrMissingSecret = errors.New("token signing secret is not configured")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingClaim  = errors.New("token is missing a required claim")
)

// claims mirrors the payload the account service signs. Older tokens carry
// the user id in "_id", newer ones in the registered "sub" claim. Some carry
// only the email, which then doubles as the user id.
type claims struct {
	LegacyID string `json:"_id,omitempty"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HMAC-signed tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// Option customizes a JWTVerifier.
type Option func(*verifierOptions)

type verifierOptions struct {
	leeway   time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// WithLeeway tolerates clock skew on exp/nbf/iat.
func WithLeeway(d time.Duration) Option {
	return func(o *verifierOptions) { o.leeway = d }
}

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) Option {
	return func(o *verifierOptions) { o.issuer = issuer }
}

// WithAudience requires aud to contain audience.
func WithAudience(audience string) Option {
	return func(o *verifierOptions) { o.audience = audience }
}

func withClock(now func() time.Time) Option {
	return func(o *verifierOptions) { o.now = now }
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string, opts ...Option) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	var o verifierOptions
	for _, opt := range opts {
		opt(&o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithLeeway(o.leeway),
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}
	if o.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(o.audience))
	}
	if o.now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(o.now))
	}

	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// Verify implements interfaces.IdentityVerifier.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*types.Identity, error) {
	var c claims
	_, err := v.parser.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if c.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingClaim)
	}
	userID := c.LegacyID
	if userID == "" {
		userID = c.Subject
	}
	if userID == "" {
		userID = c.Email
	}

	return &types.Identity{UserID: userID, Email: c.Email}, nil
}

// IssueToken signs an HS256 token for identity. It exists for local
// tooling and tests; production tokens come from the account service.
func IssueToken(secret string, identity types.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	now := time.Now()
	c := claims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
