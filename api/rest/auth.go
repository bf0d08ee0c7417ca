package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philsgames/questtracker/cache"
	"github.com/philsgames/questtracker/config"
	mw "github.com/philsgames/questtracker/middleware"
	"github.com/philsgames/questtracker/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const cacheTimeout = 2 * time.Second

// AuthHandler serves login, logout and token refresh. Login
// auto-registers unknown usernames; the first account ever created is
// the GM and every later one a player.
type AuthHandler struct {
	db    *gorm.DB
	cache cache.Cache
	sec   config.SecurityConfig
}

func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=2,max=32"`
	Password string `json:"password" binding:"required,min=4,max=64"`
}

// bearerToken extracts the raw token from the Authorization header.
func bearerToken(c *gin.Context) string {
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

func (h *AuthHandler) sessionKey(token string) string {
	return "session:" + token
}

// openSession issues a token and records it in the session cache.
func (h *AuthHandler) openSession(ctx context.Context, accountID int64, role string) (string, error) {
	token, err := mw.GenerateToken(accountID, role, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return "", err
	}
	_ = h.cache.Set(ctx, h.sessionKey(token),
		strconv.FormatInt(accountID, 10), h.sec.JWTTTLH)
	return token, nil
}

// register creates the account, assigning the gm role when the table
// is empty. A concurrent registration of the same name surfaces as a
// unique violation.
func (h *AuthHandler) register(username, password string) (model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return model.Account{}, err
	}

	var count int64
	h.db.Model(&model.Account{}).Count(&count)
	role := model.RolePlayer
	if count == 0 {
		role = model.RoleGM
	}

	acc := model.Account{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	return acc, h.db.Create(&acc).Error
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var acc model.Account
	err := h.db.Where("username = ?", req.Username).First(&acc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		acc, err = h.register(req.Username, req.Password)
		if err != nil {
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			}
			return
		}
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	default:
		if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), cacheTimeout)
	defer cancel()
	token, err := h.openSession(ctx, acc.ID, acc.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	// Best-effort last-login stamp.
	_ = h.db.Model(&acc).Updates(map[string]interface{}{
		"last_login_at": time.Now(),
		"last_login_ip": c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"account_id": acc.ID,
		"role":       acc.Role,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), cacheTimeout)
	defer cancel()
	_ = h.cache.Del(ctx, h.sessionKey(token))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh: drops the presented session
// and opens a fresh one for the same account.
func (h *AuthHandler) Refresh(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), cacheTimeout)
	defer cancel()
	_ = h.cache.Del(ctx, h.sessionKey(bearerToken(c)))

	token, err := h.openSession(ctx, accountID, mw.GetRole(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// isUniqueViolation matches duplicate-key errors across sqlite and mysql.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
