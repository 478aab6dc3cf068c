package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"camtrap/internal/config"
	"camtrap/internal/ids"
	"camtrap/internal/models"
	"camtrap/internal/repository"
	"camtrap/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
	ErrRegistrationClosed = errors.New("registration closed")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrInvalidInput       = errors.New("email and password required")
)

const revokedKeyPrefix = "camtrap:revoked:"

// UserStore is the subset of the user repository the auth service uses.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
}

type AuthService struct {
	users UserStore
	cache *redis.Client
	cfg   config.SecurityConfig
	hash  func(password string) ([]byte, error)
	log   zerolog.Logger
}

func NewAuthService(users UserStore, cache *redis.Client, cfg config.SecurityConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users: users,
		cache: cache,
		cfg:   cfg,
		hash:  security.HashPassword,
		log:   log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	if !s.cfg.AllowRegistration {
		return AuthResult{}, ErrRegistrationClosed
	}

	user, err := s.createUser(ctx, input, models.UserRoleViewer)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	// Only a caller holding the password learns the account is disabled.
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	return s.issue(user)
}

// Authenticate validates an access token and returns its active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.User, *security.AccessClaims, error) {
	claims, err := security.ParseAccessToken(token, s.cfg.JWTAccessSecret)
	if err != nil {
		return models.User{}, nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	revoked, err := s.cache.Exists(ctx, revokedKeyPrefix+claims.ID).Result()
	if err != nil {
		return models.User{}, nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked > 0 {
		return models.User{}, nil, ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, nil, ErrInvalidCredentials
		}
		return models.User{}, nil, err
	}
	if user.Status != models.UserStatusActive {
		return models.User{}, nil, ErrUserSuspended
	}
	return user, claims, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *security.AccessClaims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.Set(ctx, revokedKeyPrefix+claims.ID, claims.UserID, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// EnsureBootstrapUser creates the configured admin account if it does not
// exist yet. Nothing happens when no bootstrap email is configured.
func (s *AuthService) EnsureBootstrapUser(ctx context.Context) error {
	email := normalizeEmail(s.cfg.BootstrapEmail)
	if email == "" {
		return nil
	}

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	user, err := s.createUser(ctx, RegisterInput{
		Email:       email,
		Password:    s.cfg.BootstrapPassword,
		DisplayName: "Administrator",
	}, models.UserRoleAdmin)
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create bootstrap user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("bootstrap admin created")
	return nil
}

func (s *AuthService) SetUserStatus(ctx context.Context, id string, status models.UserStatus) error {
	switch status {
	case models.UserStatusActive, models.UserStatusDisabled:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.users.UpdateStatus(ctx, id, status)
}

func (s *AuthService) createUser(ctx context.Context, input RegisterInput, role models.UserRole) (models.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return models.User{}, ErrInvalidInput
	}

	passwordHash, err := s.hash(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		Role:         role,
		Status:       models.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *AuthService) issue(user models.User) (AuthResult, error) {
	token, err := security.GenerateAccessToken(s.cfg.JWTAccessSecret, user.ID, string(user.Role), s.cfg.JWTAccessTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{AccessToken: token.Token, ExpiresAt: token.ExpiresAt, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
