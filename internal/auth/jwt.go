package auth

import (
	"errors"
	"strconv"
	"time"

	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token fails verification or carries
	// the wrong type/claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are the JWT claims carried by both token kinds. Role is only set on
// access tokens.
type Claims struct {
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies access and refresh tokens. The two kinds
// use separate secrets and carry a "typ" claim.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenManager returns a TokenManager with the given secrets and lifetimes.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// SignAccess issues an access token carrying the actor's id and role.
func (m *TokenManager) SignAccess(userID int64, role dom.Role) (string, error) {
	return m.sign(userID, string(role), tokenTypeAccess, m.accessSecret, m.accessTTL)
}

// SignRefresh issues a refresh token for the user.
func (m *TokenManager) SignRefresh(userID int64) (string, error) {
	return m.sign(userID, "", tokenTypeRefresh, m.refreshSecret, m.refreshTTL)
}

func (m *TokenManager) sign(userID int64, role, typ string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess parses an access token and returns the actor it names.
func (m *TokenManager) VerifyAccess(token string) (dom.Actor, error) {
	claims, err := m.verify(token, tokenTypeAccess, m.accessSecret)
	if err != nil {
		return dom.Actor{}, err
	}
	role := dom.Role(claims.Role)
	if !role.Valid() {
		return dom.Actor{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return dom.Actor{}, ErrInvalidToken
	}
	return dom.Actor{ID: id, Role: role}, nil
}

// VerifyRefresh parses a refresh token and returns the user id.
func (m *TokenManager) VerifyRefresh(token string) (int64, error) {
	claims, err := m.verify(token, tokenTypeRefresh, m.refreshSecret)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

func (m *TokenManager) verify(token, wantType string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.TokenType != wantType || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
