package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/actionartem/taskganttback/internal/model"
	"github.com/actionartem/taskganttback/internal/pkg/metrics"
	"github.com/actionartem/taskganttback/internal/pkg/ratelimit"
	"github.com/actionartem/taskganttback/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Handler 提供登录、注册与 Telegram 绑定接口。
type Handler struct {
	store       *store.Store
	limiter     *ratelimit.RateLimiter
	jwtSecret   []byte
	botUsername string
	codeTTL     time.Duration
	logger      *slog.Logger
}

// NewHandler 创建 Auth Handler。limiter 为 nil 时不限流。
func NewHandler(st *store.Store, limiter *ratelimit.RateLimiter, jwtSecret string, botUsername string, codeTTL time.Duration, logger *slog.Logger) *Handler {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	return &Handler{
		store:       st,
		limiter:     limiter,
		jwtSecret:   []byte(jwtSecret),
		botUsername: strings.TrimSpace(botUsername),
		codeTTL:     codeTTL,
		logger:      logger,
	}
}

type loginRequest struct {
	Login string `json:"login"`
}

type registerRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name"`
	RoleText string `json:"role_text"`
}

type passwordLoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type codeFromBotRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
}

// userWithToken 在用户对象上附加 JWT，字段平铺到同一层。
type userWithToken struct {
	*model.User
	Token string `json:"token,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Login string `json:"login"`
}

// Login 按 login 查找用户（无口令的旧接口）。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Login == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login is required"})
		return
	}

	user, err := h.store.UserByLogin(c.Request.Context(), req.Login)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error("auth/login failed", slog.String("login", req.Login), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("login", req.Login), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(http.StatusOK, userWithToken{User: user, Token: token})
}

// RegisterPassword 创建带口令的新用户。
func (h *Handler) RegisterPassword(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Login == "" || req.Password == "" || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login, password and name are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	hashStr := string(hash)
	user := model.User{
		Login:        req.Login,
		PasswordHash: &hashStr,
		Name:         req.Name,
		RoleText:     req.RoleText,
		IsActive:     true,
	}
	if err := h.store.CreateUser(c.Request.Context(), &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "login already exists"})
			return
		}
		h.logger.Error("auth/register-password failed", slog.String("login", req.Login), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	token, err := h.issueToken(&user)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("login", req.Login), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	h.logger.Info("user registered", slog.String("login", req.Login), slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, userWithToken{User: &user, Token: token})
}

// LoginPassword 校验口令并返回用户与 JWT。
func (h *Handler) LoginPassword(c *gin.Context) {
	var req passwordLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Login == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
		return
	}

	user, err := h.store.UserByLogin(c.Request.Context(), req.Login)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error("auth/login-password failed", slog.String("login", req.Login), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	if user.PasswordHash == nil ||
		bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("login", req.Login), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	h.logger.Info("user logged in", slog.String("login", req.Login))
	c.JSON(http.StatusOK, userWithToken{User: user, Token: token})
}

// TelegramRequest 为用户签发一次性绑定码并返回 deeplink。
func (h *Handler) TelegramRequest(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Login == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login is required"})
		return
	}

	if allowed, retryAfter := h.limiter.Allow(c.Request.Context(), "tg_code:"+req.Login); !allowed {
		seconds := int(retryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", fmt.Sprintf("%d", seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_requests", "retry_after": seconds})
		return
	}

	user, err := h.store.UserByLogin(c.Request.Context(), req.Login)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error("auth/telegram/request failed", slog.String("login", req.Login), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	code, err := generateCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate code failed"})
		return
	}

	issued, err := h.store.IssueLoginCode(c.Request.Context(), user.ID, code, h.codeTTL)
	if err != nil {
		h.logger.Error("issue login code failed", slog.String("login", req.Login), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	metrics.CodesIssuedTotal.Inc()
	h.logger.Info("telegram code issued",
		slog.String("login", req.Login),
		slog.Uint64("user_id", uint64(user.ID)))

	var deeplink interface{}
	if h.botUsername != "" {
		deeplink = fmt.Sprintf("https://t.me/%s?start=st_%s", h.botUsername, code)
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"user_id":           user.ID,
		"login":             req.Login,
		"code":              code,
		"expires_at":        issued.ExpiresAt,
		"telegram_deeplink": deeplink,
	})
}

// TelegramCodeFromBot 兑换一次性绑定码，绑定 telegram_id 到用户。
func (h *Handler) TelegramCodeFromBot(c *gin.Context) {
	var req codeFromBotRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TelegramID == 0 || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "telegram_id and code are required"})
		return
	}

	user, err := h.store.RedeemLoginCode(c.Request.Context(), req.TelegramID, req.Code, req.Name)
	if errors.Is(err, store.ErrInvalidCode) {
		metrics.CodesRejectedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_or_expired_code"})
		return
	}
	if err != nil {
		h.logger.Error("auth/telegram/code-from-bot failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	metrics.CodesRedeemedTotal.Inc()
	h.logger.Info("telegram linked",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.Int64("telegram_id", req.TelegramID))
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user})
}

// generateCode 生成 100000..999999 的 6 位码。
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func (h *Handler) issueToken(user *model.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
		Login: user.Login,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}
