package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "civio"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	bearerScheme = "Bearer "
)

// Claims is the signed payload carried by both token classes. Role and email
// ride along for client convenience; the gate re-resolves them from the
// store before trusting them.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Principal reconstructs the identity asserted by verified claims.
func (c Claims) Principal() (Principal, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, ErrTokenInvalid
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return Principal{}, ErrTokenInvalid
	}
	return Principal{ID: id, Email: c.Email, Role: role}, nil
}

// TokenService issues and verifies the two bearer token classes. Access and
// refresh tokens are signed with distinct secrets so compromising one key
// never lets an attacker forge the other class.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs the service. Both secrets are required and must
// differ.
func NewTokenService(accessSecret, refreshSecret string, opts ...TokenOption) (*TokenService, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	svc := &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs a short-lived access token for the principal.
func (s *TokenService) IssueAccessToken(principal Principal) (string, time.Time, error) {
	return s.issue(principal, tokenTypeAccess, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for the principal.
func (s *TokenService) IssueRefreshToken(principal Principal) (string, time.Time, error) {
	return s.issue(principal, tokenTypeRefresh, s.refreshSecret, s.refreshTTL)
}

func (s *TokenService) issue(principal Principal, tokenType string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if principal.ID <= 0 || !principal.Role.Valid() {
		return "", time.Time{}, errors.New("auth: principal is incomplete")
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Email:     principal.Email,
		Role:      principal.Role.String(),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(principal.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccessToken validates signature, expiry and type of an access token.
func (s *TokenService) VerifyAccessToken(token string) (Claims, error) {
	return s.verify(token, tokenTypeAccess, s.accessSecret)
}

// VerifyRefreshToken validates signature, expiry and type of a refresh
// token. An access token presented here fails twice over: wrong secret and
// wrong token_type.
func (s *TokenService) VerifyRefreshToken(token string) (Claims, error) {
	return s.verify(token, tokenTypeRefresh, s.refreshSecret)
}

func (s *TokenService) verify(token, wantType string, secret []byte) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if claims.TokenType != wantType {
		return Claims{}, ErrTokenInvalid
	}
	if _, err := claims.Principal(); err != nil {
		return Claims{}, ErrTokenInvalid
	}
	return *claims, nil
}

// ExtractBearerToken returns the raw token from an Authorization header
// value, or false when the bearer scheme prefix is absent. Pure parsing, no
// side effects.
func ExtractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerScheme) {
		return "", false
	}
	if !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", false
	}
	return token, true
}
