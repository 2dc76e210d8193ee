// Package app contains the application services. AuthService owns the session
// token lifecycle: registration, login, single-use refresh-token rotation, and
// logout.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"clipstream/internal/model"
	"clipstream/internal/pkg/logger"
	"clipstream/internal/pkg/password"
	"clipstream/internal/repository"
	"clipstream/internal/storage"
)

var (
	ErrInvalidInput      = errors.New("all fields are required")
	ErrAvatarRequired    = errors.New("avatar file is required")
	ErrAvatarUpload      = errors.New("avatar upload failed")
	ErrUserExists        = errors.New("user with email or username already exists")
	ErrInvalidCredential = errors.New("invalid user credentials")
	ErrUnauthorized      = errors.New("unauthorized request")
	ErrTokenReused       = errors.New("refresh token is expired, used, or tampered")
	ErrTokenIssue        = errors.New("failure in generating tokens")
	ErrInconsistentState = errors.New("user record inconsistent after creation")
	ErrUserNotFound      = errors.New("user not found")
)

// UserStore is the persistence boundary for identity records. RotateRefreshToken
// must be a conditional write: it replaces the stored token only while oldToken
// is still current, and reports false otherwise.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error)
	SetRefreshToken(ctx context.Context, id uint, refreshToken string) error
	ClearRefreshToken(ctx context.Context, id uint) error
	RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error)
}

// TokenSigner mints and verifies the paired session credentials.
type TokenSigner interface {
	SignAccess(userID uint) (string, error)
	SignRefresh(userID uint) (string, error)
	VerifyRefresh(tokenString string) (uint, error)
}

// EventPublisher delivers audit events; failures are logged, never fatal.
type EventPublisher interface {
	Publish(ctx context.Context, event model.AuthEvent) error
}

// ProfileCache caches sanitized projections keyed by user id.
type ProfileCache interface {
	Get(ctx context.Context, userID uint) (*model.PublicUser, bool, error)
	Set(ctx context.Context, user *model.PublicUser) error
	Delete(ctx context.Context, userID uint) error
}

type AuthService struct {
	users    UserStore
	tokens   TokenSigner
	uploader storage.Uploader
	events   EventPublisher
	profiles ProfileCache
}

type RegisterInput struct {
	FullName string
	Email    string
	Username string
	Password string
	ClientIP string

	// Staged local file paths; the upload adapter owns their cleanup.
	AvatarPath     string
	CoverImagePath string
}

type LoginInput struct {
	Username string
	Email    string
	Password string
	ClientIP string
}

// TokenPair bundles a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthResult struct {
	User   *model.PublicUser
	Tokens TokenPair
}

func NewAuthService(users UserStore, tokens TokenSigner, uploader storage.Uploader, events EventPublisher, profiles ProfileCache) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		uploader: uploader,
		events:   events,
		profiles: profiles,
	}
}

// Register creates a new user. The avatar is mandatory and must transfer to
// object storage before the record is written; nothing is persisted on any
// failure path.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*model.PublicUser, error) {
	fullName := strings.TrimSpace(input.FullName)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	username := strings.TrimSpace(strings.ToLower(input.Username))
	plain := strings.TrimSpace(input.Password)

	if fullName == "" || email == "" || username == "" || plain == "" {
		return nil, ErrInvalidInput
	}

	existing, err := s.users.GetByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	// Checked before any transfer is attempted: a missing avatar must not
	// cost an upload round trip for the cover image.
	if input.AvatarPath == "" {
		return nil, ErrAvatarRequired
	}

	avatar, err := s.uploader.Upload(ctx, input.AvatarPath)
	if err != nil || avatar == nil {
		return nil, ErrAvatarUpload
	}

	coverURL := ""
	if cover, err := s.uploader.Upload(ctx, input.CoverImagePath); err == nil && cover != nil {
		coverURL = cover.URL
	}

	hash, err := password.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		PasswordHash:  hash,
		AvatarURL:     avatar.URL,
		CoverImageURL: coverURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	created, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, ErrInconsistentState
	}

	s.publish(ctx, created, model.ActionRegistered, input.ClientIP)
	return created.Sanitize(), nil
}

// Login verifies credentials and issues a fresh token pair, persisting the
// refresh token as the user's single active session. Unknown account and bad
// password are deliberately indistinguishable.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(strings.ToLower(input.Username))
	email := strings.TrimSpace(strings.ToLower(input.Email))
	plain := input.Password

	if (username == "" && email == "") || plain == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if !password.Verify(plain, user.PasswordHash) {
		return nil, ErrInvalidCredential
	}

	pair, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.dropProfile(ctx, user.ID)
	s.publish(ctx, user, model.ActionLoggedIn, input.ClientIP)
	return &AuthResult{User: user.Sanitize(), Tokens: *pair}, nil
}

// Refresh rotates a presented refresh token for a new pair. The conditional
// store write guarantees that a given stored token value can be rotated at
// most once: a replayed or concurrently rotated token fails with ErrTokenReused.
func (s *AuthService) Refresh(ctx context.Context, presented string) (*AuthResult, error) {
	if presented == "" {
		return nil, ErrUnauthorized
	}

	userID, err := s.tokens.VerifyRefresh(presented)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	access, err := s.tokens.SignAccess(user.ID)
	if err != nil {
		return nil, ErrTokenIssue
	}
	refresh, err := s.tokens.SignRefresh(user.ID)
	if err != nil {
		return nil, ErrTokenIssue
	}

	rotated, err := s.users.RotateRefreshToken(ctx, user.ID, presented, refresh)
	if err != nil {
		return nil, ErrTokenIssue
	}
	if !rotated {
		return nil, ErrTokenReused
	}

	s.dropProfile(ctx, user.ID)
	s.publish(ctx, user, model.ActionRefreshed, "")
	return &AuthResult{User: user.Sanitize(), Tokens: TokenPair{AccessToken: access, RefreshToken: refresh}}, nil
}

// Logout unsets the user's stored refresh token. The caller is already
// authenticated via an access token; no refresh token is validated here.
func (s *AuthService) Logout(ctx context.Context, userID uint) (*model.PublicUser, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		return nil, err
	}

	s.dropProfile(ctx, userID)
	s.publish(ctx, user, model.ActionLoggedOut, "")
	return user.Sanitize(), nil
}

// CurrentUser returns the sanitized projection for an authenticated user,
// served from cache when possible.
func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*model.PublicUser, error) {
	if s.profiles != nil {
		if cached, ok, err := s.profiles.Get(ctx, userID); err == nil && ok {
			return cached, nil
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	sanitized := user.Sanitize()
	if s.profiles != nil {
		if err := s.profiles.Set(ctx, sanitized); err != nil {
			logger.Warn("cache user profile failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return sanitized, nil
}

// issueTokens signs a fresh pair and persists the refresh token last, so a
// store failure leaves the previously stored token intact and discards the
// unpersisted pair.
func (s *AuthService) issueTokens(ctx context.Context, userID uint) (*TokenPair, error) {
	access, err := s.tokens.SignAccess(userID)
	if err != nil {
		return nil, ErrTokenIssue
	}
	refresh, err := s.tokens.SignRefresh(userID)
	if err != nil {
		return nil, ErrTokenIssue
	}
	if err := s.users.SetRefreshToken(ctx, userID, refresh); err != nil {
		return nil, ErrTokenIssue
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) publish(ctx context.Context, user *model.User, action, clientIP string) {
	if s.events == nil {
		return
	}
	event := model.AuthEvent{
		UserID:   user.ID,
		Username: user.Username,
		Action:   action,
		ClientIP: clientIP,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warn("publish auth event failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuthService) dropProfile(ctx context.Context, userID uint) {
	if s.profiles == nil {
		return
	}
	if err := s.profiles.Delete(ctx, userID); err != nil {
		logger.Warn("invalidate user profile cache failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}
