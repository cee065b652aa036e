package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"medidesk.org/internal/clinic"
)

const (
	defaultIssuer     = "medidesk"
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are the JWT claims carried by both token kinds. TokenType keeps an
// access token from being replayed as a refresh token and vice versa.
type Claims struct {
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Tokens signs and verifies the two JWT families with separate HS256 secrets.
type Tokens struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption customizes the token service.
type TokenOption func(*Tokens)

// WithIssuer overrides the issuer claim.
func WithIssuer(iss string) TokenOption {
	return func(t *Tokens) { t.issuer = iss }
}

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) { t.accessTTL = ttl }
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) { t.refreshTTL = ttl }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(t *Tokens) { t.now = now }
}

// NewTokens builds the token service. Both secrets are required and must
// differ so that one leaked key never unlocks the other family.
func NewTokens(accessSecret, refreshSecret string, opts ...TokenOption) (*Tokens, error) {
	if strings.TrimSpace(accessSecret) == "" || strings.TrimSpace(refreshSecret) == "" {
		return nil, errors.New("auth: both token secrets are required")
	}
	t := &Tokens{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.accessTTL <= 0 || t.refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return t, nil
}

// Issue signs a fresh access and refresh token pair for the subject.
func (t *Tokens) Issue(userID string, role clinic.Role) (*TokenPair, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("auth: subject id is required")
	}
	access, err := t.sign(userID, role, tokenTypeAccess, t.accessTTL, t.accessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(userID, role, tokenTypeRefresh, t.refreshTTL, t.refreshSecret)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.accessTTL.Seconds()),
	}, nil
}

// IssueAccess signs a new access token only; used on refresh, which leaves
// the refresh token untouched.
func (t *Tokens) IssueAccess(userID string, role clinic.Role) (string, int64, error) {
	signed, err := t.sign(userID, role, tokenTypeAccess, t.accessTTL, t.accessSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(t.accessTTL.Seconds()), nil
}

func (t *Tokens) sign(userID string, role clinic.Role, tokenType string, ttl time.Duration, secret []byte) (string, error) {
	now := t.now().UTC()
	claims := Claims{
		Role:      string(role),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and returns its claims.
func (t *Tokens) VerifyAccess(token string) (*Claims, error) {
	return t.verify(token, tokenTypeAccess, t.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (t *Tokens) VerifyRefresh(token string) (*Claims, error) {
	return t.verify(token, tokenTypeRefresh, t.refreshSecret)
}

func (t *Tokens) verify(token, wantType string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := t.validateClaims(claims, wantType); err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (t *Tokens) validateClaims(claims *Claims, wantType string) error {
	if claims.TokenType != wantType {
		return fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.Issuer != t.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := t.now().UTC()
	// The expiry instant itself already counts as expired.
	if !now.Before(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
