package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"infrasite/internal/api/middleware"
	"infrasite/internal/auth"
	"infrasite/internal/config"
	"infrasite/internal/database"
)

const (
	refreshTokenCookieName         = "refresh_token"
	refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"
	loginRatePrefix                = "rate:login:"
	loginLockPrefix                = "lock:login:"
	loginFailPrefix                = "fail:login:"
)

// AuthHandler serves login, token refresh, logout and password changes for CMS users.
// Accounts are created with the admin CLI; there is no self-registration.
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	kv          redisKV
	cfg         config.AuthConfig
}

func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, kv redisKV, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{db: db, authService: authService, kv: kv, cfg: cfg}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=72"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

type meResponse struct {
	ID                 uint   `json:"id"`
	Username           string `json:"username"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Login checks the password and returns an access token; the refresh token goes in a cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, &req)
		return
	}

	ctx := c.Request.Context()
	username := strings.ToLower(strings.TrimSpace(req.Username))
	log := middleware.LoggerFromContext(c).With(slog.String("username", username))

	if hourlyLimitExceeded(ctx, h.kv, loginRatePrefix, c.ClientIP()+":"+username, h.cfg.LoginRateLimitPerHour) {
		log.Warn("login rate limit exceeded")
		TooManyRequests(c)
		return
	}
	if ttl, err := h.kv.TTL(ctx, loginLockPrefix+username).Result(); err == nil && ttl > 0 {
		Error(c, http.StatusTooManyRequests, "account temporarily locked")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Info("login failed: unknown user")
			h.recordLoginFailure(ctx, log, username)
			Unauthorized(c)
			return
		}
		log.Error("login lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		log.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		h.recordLoginFailure(ctx, log, username)
		Unauthorized(c)
		return
	}

	_ = h.kv.Del(ctx, loginFailPrefix+username).Err()
	log.Info("login succeeded", slog.Uint64("user_id", uint64(user.ID)))
	h.issueTokens(c, &user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token: the presented one is blacklisted and a new pair issued.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	claims, ok := h.refreshClaims(c, log)
	if !ok {
		Unauthorized(c)
		return
	}

	key := refreshTokenBlacklistKeyPrefix + claims.ID
	if err := h.kv.Get(ctx, key).Err(); err == nil {
		log.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	} else if !errors.Is(err, redis.Nil) {
		log.Error("refresh blacklist lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		log.Info("refresh user not found", slog.Uint64("user_id", uint64(claims.UserID)))
		Unauthorized(c)
		return
	}

	if err := h.revoke(ctx, claims); err != nil {
		log.Error("revoke rotated refresh token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.issueTokens(c, &user)
}

// Logout blacklists the refresh token and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	log := middleware.LoggerFromContext(c)
	claims, ok := h.refreshClaims(c, log)
	if !ok {
		Unauthorized(c)
		return
	}
	if err := h.revoke(c.Request.Context(), claims); err != nil {
		log.Error("logout revoke failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.writeRefreshCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		Unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, meResponse{
		ID:                 user.ID,
		Username:           user.Username,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,max=72"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ChangePassword replaces the password, clears the must-change flag and issues fresh tokens.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, &req)
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		BadRequest(c, "new password must be different from current password")
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		Unauthorized(c)
		return
	}
	if !h.authService.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		log.Info("change password: current password mismatch")
		Unauthorized(c)
		return
	}

	hashed, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		log.Error("change password: hash failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		log.Error("change password: update failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	user.MustChangePassword = false

	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		if claims, err := h.authService.ValidateToken(token); err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			if err := h.revoke(ctx, claims); err != nil {
				log.Warn("change password: revoke old refresh token failed", slog.Any("error", err))
			}
		}
	}

	log.Info("password changed")
	h.issueTokens(c, &user)
}

func (h *AuthHandler) issueTokens(c *gin.Context, user *database.User) {
	pair, err := h.authService.GenerateTokenPair(user.ID, user.Role, user.MustChangePassword)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.writeRefreshCookie(c, pair.RefreshToken, int(h.authService.RefreshTokenTTL().Seconds()))
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	})
}

// refreshClaims reads the refresh token from the cookie or the JSON body.
func (h *AuthHandler) refreshClaims(c *gin.Context, log *slog.Logger) (*auth.TokenClaims, bool) {
	token, err := c.Cookie(refreshTokenCookieName)
	if err != nil || token == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		return nil, false
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		log.Info("refresh token invalid", slog.Any("error", err))
		return nil, false
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		log.Info("refresh token rejected", slog.String("token_type", claims.TokenType))
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) revoke(ctx context.Context, claims *auth.TokenClaims) error {
	return h.kv.Set(ctx, refreshTokenBlacklistKeyPrefix+claims.ID, "revoked", remaining(claims.ExpiresAt, h.authService.RefreshTokenTTL())).Err()
}

func remaining(expiresAt *jwt.NumericDate, fallback time.Duration) time.Duration {
	ttl := fallback
	if expiresAt != nil {
		ttl = time.Until(expiresAt.Time)
	}
	return max(ttl, time.Second)
}

func (h *AuthHandler) recordLoginFailure(ctx context.Context, log *slog.Logger, username string) {
	count, err := incrWithTTL(ctx, h.kv, loginFailPrefix+username, h.cfg.LoginLockTTL)
	if err != nil {
		log.Warn("record login failure failed", slog.Any("error", err))
		return
	}
	if h.cfg.LoginLockThreshold > 0 && count >= int64(h.cfg.LoginLockThreshold) {
		log.Warn("account locked after repeated failures", slog.Int64("failures", count))
		_ = h.kv.Set(ctx, loginLockPrefix+username, "1", h.cfg.LoginLockTTL).Err()
	}
}

func (h *AuthHandler) writeRefreshCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/v1/auth",
		Domain:   strings.TrimSpace(h.cfg.CookieDomain),
		Secure:   isHTTPS(c.Request),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func isHTTPS(r *http.Request) bool {
	if r == nil {
		return false
	}
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
