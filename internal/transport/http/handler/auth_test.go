package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipstream/internal/app"
	"clipstream/internal/config"
	"clipstream/internal/model"
	"clipstream/internal/pkg/password"
	"clipstream/internal/pkg/token"
	"clipstream/internal/storage"
	"clipstream/internal/transport/http/middleware"
)

// in-memory store backing the handler tests

type memoryUserStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*model.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{nextID: 1, users: map[uint]*model.User{}}
}

func (s *memoryUserStore) Create(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = s.nextID
	s.nextID++
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *memoryUserStore) GetByID(ctx context.Context, id uint) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	clone := *user
	return &clone, nil
}

func (s *memoryUserStore) GetByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if (username != "" && user.Username == username) || (email != "" && user.Email == email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memoryUserStore) SetRefreshToken(ctx context.Context, id uint, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return errors.New("user not found")
	}
	user.RefreshToken = refreshToken
	return nil
}

func (s *memoryUserStore) ClearRefreshToken(ctx context.Context, id uint) error {
	return s.SetRefreshToken(ctx, id, "")
}

func (s *memoryUserStore) RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok || user.RefreshToken != oldToken {
		return false, nil
	}
	user.RefreshToken = newToken
	return true, nil
}

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, localPath string) (*storage.UploadResult, error) {
	if localPath == "" {
		return nil, nil
	}
	return &storage.UploadResult{URL: "https://cdn.example.com/" + localPath}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *memoryUserStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemoryUserStore()
	tokens := token.NewManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	authService := app.NewAuthService(store, tokens, stubUploader{}, nil, nil)

	authConfig := config.AuthConfig{
		AccessExpireMinute: 15,
		RefreshExpireHour:  24,
		CookieSecure:       true,
	}
	authHandler := NewAuthHandler(authService, authConfig, t.TempDir())

	router := gin.New()
	group := router.Group("/api/v1/auth")
	group.POST("/register", authHandler.Register)
	group.POST("/login", authHandler.Login)
	group.POST("/refresh", authHandler.Refresh)
	group.POST("/logout", middleware.AuthJWT(tokens), authHandler.Logout)
	group.GET("/me", middleware.AuthJWT(tokens), authHandler.Me)
	return router, store
}

func multipartRegisterBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for field, filename := range files {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func registerAlice(t *testing.T, router *gin.Engine) {
	t.Helper()
	body, contentType := multipartRegisterBody(t,
		map[string]string{
			"fullName": "Alice Liddell",
			"email":    "a@x.com",
			"username": "alice",
			"password": "p4ssword!",
		},
		map[string]string{"avatar": "avatar.png"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func loginAlice(t *testing.T, router *gin.Engine) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	payload := `{"username":"alice","email":"a@x.com","password":"p4ssword!"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := map[string]string{}
	for _, cookie := range rec.Result().Cookies() {
		cookies[cookie.Name] = cookie.Value
	}
	return rec, cookies
}

func TestRegisterEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	body, contentType := multipartRegisterBody(t,
		map[string]string{
			"fullName": "Alice Liddell",
			"email":    "a@x.com",
			"username": "Alice",
			"password": "p4ssword!",
		},
		map[string]string{"avatar": "avatar.png", "coverImage": "cover.jpg"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "refresh_token")

	var envelope struct {
		Data struct {
			User model.PublicUser `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "alice", envelope.Data.User.Username)
	assert.NotEmpty(t, envelope.Data.User.AvatarURL)
	assert.NotEmpty(t, envelope.Data.User.CoverImageURL)

	stored, err := store.GetByID(context.Background(), envelope.Data.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, password.Verify("p4ssword!", stored.PasswordHash))
}

func TestRegisterEndpointMissingAvatar(t *testing.T) {
	router, store := newTestRouter(t)

	body, contentType := multipartRegisterBody(t,
		map[string]string{
			"fullName": "Alice Liddell",
			"email":    "a@x.com",
			"username": "alice",
			"password": "p4ssword!",
		},
		nil,
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "avatar")
	assert.Empty(t, store.users)
}

func TestRegisterEndpointDuplicate(t *testing.T) {
	router, _ := newTestRouter(t)
	registerAlice(t, router)

	body, contentType := multipartRegisterBody(t,
		map[string]string{
			"fullName": "Other Alice",
			"email":    "other@x.com",
			"username": "alice",
			"password": "p4ssword!",
		},
		map[string]string{"avatar": "avatar.png"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginEndpointSetsSessionCookies(t *testing.T) {
	router, _ := newTestRouter(t)
	registerAlice(t, router)

	rec, cookies := loginAlice(t, router)
	assert.NotEmpty(t, cookies[middleware.AccessTokenCookie])
	assert.NotEmpty(t, cookies[refreshTokenCookie])

	for _, cookie := range rec.Result().Cookies() {
		assert.True(t, cookie.HttpOnly, "session cookies must be http-only")
		assert.True(t, cookie.Secure, "session cookies must be secure")
	}
}

func TestRefreshEndpointRotation(t *testing.T) {
	router, _ := newTestRouter(t)
	registerAlice(t, router)
	_, cookies := loginAlice(t, router)
	t0 := cookies[refreshTokenCookie]

	// rotate via cookie
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: t0})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data struct {
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	t1 := envelope.Data.RefreshToken
	require.NotEmpty(t, t1)
	assert.NotEqual(t, t0, t1)

	// replaying the consumed token fails
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: t0})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the new token works, presented in the body this time
	payload := `{"refresh_token":"` + t1 + `"}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefreshEndpointWithoutToken(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	registerAlice(t, router)
	_, cookies := loginAlice(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+cookies[middleware.AccessTokenCookie])
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "alice")
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestMeEndpointRejectsAnonymous(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndpointEndsSession(t *testing.T) {
	router, _ := newTestRouter(t)
	registerAlice(t, router)
	_, cookies := loginAlice(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+cookies[middleware.AccessTokenCookie])
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, cookie := range rec.Result().Cookies() {
		assert.Less(t, cookie.MaxAge, 0, "logout must expire the session cookies")
	}

	// the refresh token issued at login is dead after logout
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: cookies[refreshTokenCookie]})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
