package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/auth"
	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"
	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/repo"
	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/utils"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
)

const bcryptCost = 12

// TokenPair is what login/register/refresh hand back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService handles registration, login and refresh-token rotation.
// Only the sha256 of the active refresh token is stored on the user row.
type AuthService struct {
	repo   repo.UserRepo
	tokens *auth.TokenManager
}

// NewAuthService returns a new AuthService.
func NewAuthService(r repo.UserRepo, tokens *auth.TokenManager) *AuthService {
	return &AuthService{repo: r, tokens: tokens}
}

// Register creates a user with role "user" and signs them in.
func (s *AuthService) Register(ctx context.Context, email, password string) (dom.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return dom.User{}, TokenPair{}, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return dom.User{}, TokenPair{}, err
	}
	u, err := s.repo.Create(ctx, email, string(hash), dom.RoleUser)
	if err != nil {
		if utils.IsPGUniqueViolation(err) {
			return dom.User{}, TokenPair{}, ErrEmailTaken
		}
		return dom.User{}, TokenPair{}, err
	}
	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return dom.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// Login checks credentials and signs the user in.
func (s *AuthService) Login(ctx context.Context, email, password string) (dom.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return dom.User{}, TokenPair{}, ErrInvalidCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return dom.User{}, TokenPair{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return dom.User{}, TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return dom.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// Refresh rotates the refresh token: the presented token must verify and its
// hash must match the stored one, then a fresh pair replaces it.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidRefresh
	}
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenPair{}, ErrInvalidRefresh
		}
		return TokenPair{}, err
	}
	if u.RefreshTokenHash == "" || sha256Hex(refreshToken) != u.RefreshTokenHash {
		// Revoked (logout) or already rotated.
		return TokenPair{}, ErrInvalidRefresh
	}
	return s.issueTokens(ctx, u)
}

// Logout revokes the user's refresh token.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	return s.repo.SetRefreshTokenHash(ctx, userID, "")
}

// GetByID returns the user, e.g. for a /me endpoint.
func (s *AuthService) GetByID(ctx context.Context, id int64) (dom.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.User{}, ErrNotFound
		}
		return dom.User{}, err
	}
	return u, nil
}

func (s *AuthService) issueTokens(ctx context.Context, u dom.User) (TokenPair, error) {
	access, err := s.tokens.SignAccess(u.ID, u.Role)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.SignRefresh(u.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.repo.SetRefreshTokenHash(ctx, u.ID, sha256Hex(refresh)); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
