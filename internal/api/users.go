package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/actionartem/taskganttback/internal/api/middleware"
	"github.com/actionartem/taskganttback/internal/model"
	"github.com/actionartem/taskganttback/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleMe 返回当前用户。
//
// 优先使用 user_id 查询参数（旧客户端），没有时回退到 Bearer token。
func (s *Server) handleMe(c *gin.Context) {
	var id uint
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}
		id = uint(parsed)
	} else if uid, ok := middleware.UserIDFromToken(c.GetHeader("Authorization"), s.cfg.Security.JWTSecret); ok {
		id = uid
	} else {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	user, err := s.store.UserByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		s.logger.Error("get me failed", slog.Uint64("user_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// handleListUsers 返回全部用户，按 id 升序。
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.store.ListUsers(c.Request.Context())
	if err != nil {
		s.logger.Error("list users failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, users)
}

type createUserRequest struct {
	Name     string `json:"name"`
	RoleText string `json:"role_text"`
}

// handleCreateUser 创建没有口令的成员账号，login 自动生成。
func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	user := model.User{
		Login:    fmt.Sprintf("user_%s", uuid.NewString()[:8]),
		Name:     req.Name,
		RoleText: req.RoleText,
		IsActive: true,
	}
	if err := s.store.CreateUser(c.Request.Context(), &user); err != nil {
		s.logger.Error("create user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID})
}

type updateUserRequest struct {
	Name       *string `json:"name"`
	RoleText   *string `json:"role_text"`
	TelegramID *int64  `json:"telegram_id"`
}

// handleUpdateUser 部分更新用户资料，缺省字段保持不变。
func (s *Server) handleUpdateUser(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.store.UpdateUserProfile(c.Request.Context(), id, optStr(req.Name), optStr(req.RoleText), req.TelegramID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		s.logger.Error("update user failed", slog.Uint64("user_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// handleDeleteUser 删除用户。superadmin 受保护，删除不存在的用户是无操作。
func (s *Server) handleDeleteUser(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	err := s.store.DeleteUser(c.Request.Context(), id)
	if errors.Is(err, store.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot delete superadmin"})
		return
	}
	if err != nil {
		s.logger.Error("delete user failed", slog.Uint64("user_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// paramUint 解析路径参数中的 ID。
func paramUint(c *gin.Context, key string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(key), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}
