package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for malformed or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for otherwise valid but expired tokens.
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidClaims is returned when the token parses but its claims
	// are not the expected shape.
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Claims are the tenant session claims carried in issued tokens.
type Claims struct {
	jwt.RegisteredClaims
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name,omitempty"`
}

// GetTenantID parses the tenant id claim.
func (c *Claims) GetTenantID() (uuid.UUID, error) {
	return uuid.Parse(c.TenantID)
}

// JWTConfig holds token signing parameters.
type JWTConfig struct {
	Secret        string
	Expiry        time.Duration
	Issuer        string
	SigningMethod jwt.SigningMethod
}

// DefaultJWTConfig returns the service defaults: HS256, 24h expiry.
func DefaultJWTConfig(secret string) *JWTConfig {
	return &JWTConfig{
		Secret:        secret,
		Expiry:        24 * time.Hour,
		Issuer:        "deskrag",
		SigningMethod: jwt.SigningMethodHS256,
	}
}

// JWTManager issues and validates tenant session tokens.
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager creates a manager from the given configuration.
func NewJWTManager(config *JWTConfig) *JWTManager {
	if config.SigningMethod == nil {
		config.SigningMethod = jwt.SigningMethodHS256
	}
	return &JWTManager{config: config}
}

// GenerateToken issues a token with the configured expiry.
func (m *JWTManager) GenerateToken(tenantID uuid.UUID, tenantName string) (string, error) {
	return m.GenerateTokenWithExpiry(tenantID, tenantName, m.config.Expiry)
}

// GenerateTokenWithExpiry issues a token with a caller-chosen expiry.
func (m *JWTManager) GenerateTokenWithExpiry(tenantID uuid.UUID, tenantName string, expiry time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(m.config.SigningMethod, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.config.Issuer,
			Subject:   tenantID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
		TenantID:   tenantID.String(),
		TenantName: tenantName,
	})
	return token.SignedString([]byte(m.config.Secret))
}

// ValidateToken verifies the signature and validity window and returns
// the claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := m.parse(tokenString, true)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// RefreshToken issues a fresh token from an existing one. Expired tokens
// may be refreshed as long as their signature still verifies; anything
// else invalid is rejected.
func (m *JWTManager) RefreshToken(tokenString string) (string, error) {
	claims, err := m.ValidateToken(tokenString)
	if errors.Is(err, ErrExpiredToken) {
		claims, err = m.parse(tokenString, false)
	}
	if err != nil {
		return "", err
	}

	tenantID, err := claims.GetTenantID()
	if err != nil {
		return "", fmt.Errorf("invalid tenant ID in claims: %w", err)
	}

	return m.GenerateToken(tenantID, claims.TenantName)
}

// parse verifies the signature, optionally skipping the registered-claim
// validity checks so expired tokens can still be read for refresh.
func (m *JWTManager) parse(tokenString string, validateClaims bool) (*Claims, error) {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != m.config.SigningMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}

	var parseOpts []jwt.ParserOption
	if !validateClaims {
		parseOpts = append(parseOpts, jwt.WithoutClaimsValidation())
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFunc, parseOpts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}
