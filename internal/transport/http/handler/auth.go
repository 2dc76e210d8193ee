package handler

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clipstream/internal/app"
	"clipstream/internal/config"
	"clipstream/internal/transport/http/middleware"
	"clipstream/internal/transport/http/response"
)

const refreshTokenCookie = "refreshToken"

type AuthHandler struct {
	authService *app.AuthService
	authConfig  config.AuthConfig
	tmpDir      string
}

type LoginRequest struct {
	Username string `json:"username" binding:"omitempty,min=3,max=64"`
	Email    string `json:"email" binding:"omitempty,email,max=128"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func NewAuthHandler(authService *app.AuthService, authConfig config.AuthConfig, tmpDir string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		authConfig:  authConfig,
		tmpDir:      tmpDir,
	}
}

// Register handles the multipart registration form: four text fields plus a
// mandatory avatar file and an optional coverImage file. Files are staged to
// the local tmp dir; the upload adapter owns their cleanup from there.
func (h *AuthHandler) Register(c *gin.Context) {
	input := app.RegisterInput{
		FullName: c.PostForm("fullName"),
		Email:    c.PostForm("email"),
		Username: c.PostForm("username"),
		Password: c.PostForm("password"),
		ClientIP: c.ClientIP(),
	}

	if avatarPath, ok := h.stageFile(c, "avatar"); ok {
		input.AvatarPath = avatarPath
	}
	if coverPath, ok := h.stageFile(c, "coverImage"); ok {
		input.CoverImagePath = coverPath
	}

	user, err := h.authService.Register(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrAvatarRequired):
			response.Error(c, http.StatusBadRequest, response.CodeAvatarRequired, err.Error())
		case errors.Is(err, app.ErrAvatarUpload):
			response.Error(c, http.StatusBadRequest, response.CodeUploadFailed, err.Error())
		case errors.Is(err, app.ErrUserExists):
			response.Error(c, http.StatusConflict, response.CodeUserExists, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "register failed")
		}
		return
	}

	response.Created(c, gin.H{"user": user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), app.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}

	h.setSessionCookies(c, result.Tokens)
	response.OK(c, gin.H{
		"user":          result.User,
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
	})
}

// Refresh exchanges a valid refresh token, taken from the cookie or the JSON
// body, for a new pair. The presented token is invalidated by the rotation.
func (h *AuthHandler) Refresh(c *gin.Context) {
	presented, _ := c.Cookie(refreshTokenCookie)
	if presented == "" {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	result, err := h.authService.Refresh(c.Request.Context(), presented)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrTokenReused):
			response.Error(c, http.StatusUnauthorized, response.CodeTokenReused, err.Error())
		case errors.Is(err, app.ErrUnauthorized):
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "refresh failed")
		}
		return
	}

	h.setSessionCookies(c, result.Tokens)
	response.OK(c, gin.H{
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	user, err := h.authService.Logout(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, app.ErrUserNotFound) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "logout failed")
		return
	}

	h.clearSessionCookies(c)
	response.OK(c, gin.H{"user": user})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	user, err := h.authService.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, app.ErrUserNotFound) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "fetch current user failed")
		return
	}

	response.OK(c, user)
}

// stageFile saves an uploaded form file into the tmp dir under a random name.
func (h *AuthHandler) stageFile(c *gin.Context, field string) (string, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		return "", false
	}
	dst := filepath.Join(h.tmpDir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", false
	}
	return dst, true
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, tokens app.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	accessMaxAge := h.authConfig.AccessExpireMinute * 60
	refreshMaxAge := h.authConfig.RefreshExpireHour * 3600
	c.SetCookie(middleware.AccessTokenCookie, tokens.AccessToken, accessMaxAge, "/", "", h.authConfig.CookieSecure, true)
	c.SetCookie(refreshTokenCookie, tokens.RefreshToken, refreshMaxAge, "/", "", h.authConfig.CookieSecure, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", h.authConfig.CookieSecure, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", h.authConfig.CookieSecure, true)
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}
