package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrNoVerificationKey  = errors.New("jwt: either a shared secret or an RSA public key is required")
	ErrSigningUnavailable = errors.New("jwt: signing requires a shared secret")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string   `json:"user_id,omitempty"`
	Email    string   `json:"email,omitempty"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Type     string   `json:"type,omitempty"` // "access" or "refresh"
}

// Identity returns the most specific user identifier carried by the token.
// Tokens minted by older clients only carry an email address.
func (c *Claims) Identity() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.Subject != "":
		return c.Subject
	default:
		return c.Email
	}
}

// Options configures a Manager. Secret selects HS256; PublicKeyPEM selects
// RS256 verification against tokens issued by the auth service.
type Options struct {
	Secret         string
	PublicKeyPEM   []byte
	Issuer         string
	AccessDuration time.Duration
	Leeway         time.Duration
}

// Manager validates (and, with a shared secret, issues) access tokens.
type Manager struct {
	secret         []byte
	publicKey      *rsa.PublicKey
	issuer         string
	accessDuration time.Duration
	parser         *jwt.Parser
}

// NewManager creates a new JWT manager.
func NewManager(opts Options) (*Manager, error) {
	m := &Manager{
		issuer:         opts.Issuer,
		accessDuration: opts.AccessDuration,
	}
	if m.accessDuration <= 0 {
		m.accessDuration = 24 * time.Hour
	}

	var methods []string
	switch {
	case len(opts.PublicKeyPEM) > 0:
		key, err := jwt.ParseRSAPublicKeyFromPEM(opts.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("jwt: parse public key: %w", err)
		}
		m.publicKey = key
		methods = []string{jwt.SigningMethodRS256.Alg()}
	case opts.Secret != "":
		m.secret = []byte(opts.Secret)
		methods = []string{jwt.SigningMethodHS256.Alg()}
	default:
		return nil, ErrNoVerificationKey
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(opts.Leeway))
	}
	m.parser = jwt.NewParser(parserOpts...)

	return m, nil
}

// GenerateToken creates an HS256 access token. Only available when the
// manager was built with a shared secret.
func (m *Manager) GenerateToken(userID, email, username string, roles []string) (string, time.Time, error) {
	if m.secret == nil {
		return "", time.Time{}, ErrSigningUnavailable
	}

	now := time.Now()
	exp := now.Add(m.accessDuration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:   userID,
		Email:    email,
		Username: username,
		Roles:    roles,
		Type:     TokenTypeAccess,
	}

	signed, err := m.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// SignClaims signs arbitrary claims with the shared secret.
func (m *Manager) SignClaims(claims *Claims) (string, error) {
	if m.secret == nil {
		return "", ErrSigningUnavailable
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken validates a token and returns claims. Refresh tokens are
// rejected; tokens without a type are treated as access tokens.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := m.parser.ParseWithClaims(tokenString, &Claims{}, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != "" && claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	if claims.Identity() == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return claims, nil
}

func (m *Manager) keyFunc(token *jwt.Token) (interface{}, error) {
	if m.publicKey != nil {
		return m.publicKey, nil
	}
	return m.secret, nil
}
