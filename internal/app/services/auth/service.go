// Package auth implements registration, login and JWT token management.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/breathtrack/backend/internal/app/cache"
	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/storage"
	"github.com/breathtrack/backend/pkg/logger"
)

// ErrInvalidCredentials is returned when the email or password is wrong.
// Callers must not reveal which of the two failed.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInactiveAccount is returned when a deactivated or deleted account
// attempts to authenticate.
var ErrInactiveAccount = errors.New("account is inactive")

// ErrInvalidToken is returned for expired, malformed or revoked tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

// Service issues and verifies credentials. Refresh tokens are stored
// server-side so they can be rotated and revoked; losing the cache only
// forces users to log in again.
type Service struct {
	users      storage.UserStore
	cache      cache.Client
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        *logger.Logger
}

// New constructs an auth service.
func New(users storage.UserStore, c cache.Client, secret string, accessTTL, refreshTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		users:      users,
		cache:      c,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        log,
	}
}

// Register creates a new account with a hashed password.
func (s *Service) Register(ctx context.Context, email, username, password, fullName string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.ToLower(strings.TrimSpace(username))
	fullName = strings.TrimSpace(fullName)

	if err := validateEmail(email); err != nil {
		return user.User{}, err
	}
	if len(username) < 3 || len(username) > 30 {
		return user.User{}, fmt.Errorf("username must be 3-30 characters")
	}
	if len(password) < 8 {
		return user.User{}, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.CreateUser(ctx, user.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return user.User{}, fmt.Errorf("email or username already registered")
		}
		return user.User{}, err
	}

	s.log.WithField("user_id", created.ID).WithField("username", created.Username).Info("user registered")
	return created, nil
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return TokenPair{}, user.User{}, ErrInvalidCredentials
		}
		return TokenPair{}, user.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return TokenPair{}, user.User{}, ErrInvalidCredentials
	}
	if !u.IsActive || u.DeletedAt != nil {
		return TokenPair{}, user.User{}, ErrInactiveAccount
	}

	pair, err := s.issuePair(ctx, u.ID)
	if err != nil {
		return TokenPair{}, user.User{}, err
	}

	s.log.WithField("user_id", u.ID).Info("user logged in")
	return pair, u, nil
}

// Refresh rotates a refresh token into a new token pair. The presented token
// must match the server-side copy, so each refresh token is single-use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, err := s.parseToken(refreshToken, "refresh")
	if err != nil {
		return TokenPair{}, err
	}

	stored, ok := s.cache.GetString(ctx, cache.RefreshTokenKey(userID))
	if !ok || stored != refreshToken {
		return TokenPair{}, ErrInvalidToken
	}

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	if !u.IsActive || u.DeletedAt != nil {
		return TokenPair{}, ErrInactiveAccount
	}

	pair, err := s.issuePair(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}

	s.log.WithField("user_id", userID).Info("tokens refreshed")
	return pair, nil
}

// Logout revokes the user's refresh token.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.cache.Delete(ctx, cache.RefreshTokenKey(userID)); err != nil {
		return err
	}
	s.log.WithField("user_id", userID).Info("user logged out")
	return nil
}

// VerifyAccessToken validates an access token and returns the subject user ID.
func (s *Service) VerifyAccessToken(token string) (string, error) {
	return s.parseToken(token, "access")
}

func (s *Service) issuePair(ctx context.Context, userID string) (TokenPair, error) {
	access, err := s.signToken(userID, "access", s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.signToken(userID, "refresh", s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.cache.SetString(ctx, cache.RefreshTokenKey(userID), refresh, s.refreshTTL); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) signToken(userID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":        userID,
		"token_type": tokenType,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (s *Service) parseToken(raw, wantType string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if claims["token_type"] != wantType {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at:], ".") {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
