package handler

import (
	"context"  // provides context with cancellation for store calls
	"errors"
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // timeouts and token lifetimes

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/clock"
	"github.com/iliyamo/eventhub-tickets/internal/config"
	"github.com/iliyamo/eventhub-tickets/internal/middleware"
	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
	"github.com/iliyamo/eventhub-tickets/internal/utils"
)

// UserStore loads and creates admin accounts.  Satisfied by
// repository.UserRepo and memory.UserStore.
type UserStore interface {
	Create(ctx context.Context, username, password, role string, cost int) (uint64, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// RefreshTokens persists hashed refresh tokens.
type RefreshTokens interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens RefreshTokens
	Clock  clock.Clock
	Log    *zap.Logger
}

func NewAuthHandler(cfg config.Config, u UserStore, t RefreshTokens, clk clock.Clock, log *zap.Logger) *AuthHandler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Clock: clk, Log: log}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type registerReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

const minPasswordLen = 8

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

var errUnauthorized = echo.Map{"error": "invalid credentials", "code": "unauthorized"}

// Register creates another admin account (admin only).  The new admin gets
// no tokens here and signs in through Login.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	username := repository.NormalizeUsername(req.Username)
	switch {
	case username == "" || req.Password == "":
		return badRequest(c, "username/password required")
	case len(username) > 64:
		return badRequest(c, "username longer than 64 characters")
	case len(req.Password) < minPasswordLen:
		return badRequest(c, "password shorter than 8 characters")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, username, req.Password, model.RoleAdmin, h.Cfg.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrUsernameExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "username already exists", "code": "conflict"})
	case errors.Is(err, utils.ErrPasswordTooLong):
		return badRequest(c, err.Error())
	case err != nil:
		h.Log.Error("create user", zap.String("username", username), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed", "code": "internal_error"})
	}

	if by, ok := middleware.CurrentIdentity(c); ok {
		h.Log.Info("admin created", zap.Uint64("user_id", uid), zap.String("username", username), zap.String("by", by.Username))
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": userPart{ID: uid, Username: username, Role: model.RoleAdmin}})
}

// Login: verify and return a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	username := repository.NormalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		return badRequest(c, "username/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, errUnauthorized)
		}
		h.Log.Error("load user", zap.String("username", username), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "internal_error"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, errUnauthorized)
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "unauthorized"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.Error("revoke refresh token", zap.Uint64("user_id", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed", "code": "internal_error"})
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "unauthorized"})
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// RefreshAccess returns a new access token and keeps the refresh token
// as it is.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken)))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "unauthorized"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "unauthorized"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Username, u.Role,
		time.Duration(h.Cfg.AccessTTLMin)*time.Minute, h.Clock.Now())
	if err != nil {
		h.Log.Error("issue access token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed", "code": "internal_error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"access": tokenPart{Token: access.Token, Expires: access.Exp}})
}

// Logout revokes the refresh token in the body.  Without a body token, a
// valid bearer token revokes every refresh token of its user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req) // an empty body is allowed

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "unauthorized"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			h.Log.Error("revoke refresh token", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed", "code": "internal_error"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	scheme, raw, found := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return badRequest(c, "refresh_token or bearer token required")
	}
	claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(raw))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "unauthorized"})
	}
	uid, _ := claims.UserID()
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		h.Log.Error("revoke all refresh tokens", zap.Uint64("user_id", uid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed", "code": "internal_error"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me echoes the identity of the bearer token (protected).
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required", "code": "unauthorized"})
	}
	return c.JSON(http.StatusOK, userPart{ID: id.UserID, Username: id.Username, Role: id.Role})
}

func (h *AuthHandler) issue(ctx context.Context, c echo.Context, status int, u model.User) error {
	now := h.Clock.Now()
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Username, u.Role,
		time.Duration(h.Cfg.AccessTTLMin)*time.Minute, now)
	if err != nil {
		h.Log.Error("issue access token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed", "code": "internal_error"})
	}
	refresh, err := utils.NewRefreshToken(time.Duration(h.Cfg.RefreshTTLDays)*24*time.Hour, now)
	if err != nil {
		h.Log.Error("issue refresh token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed", "code": "internal_error"})
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		h.Log.Error("store refresh token", zap.Uint64("user_id", u.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed", "code": "internal_error"})
	}

	return c.JSON(status, authResp{
		User:    userPart{ID: u.ID, Username: u.Username, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}
