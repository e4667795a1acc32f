package api

import (
	"log/slog"
	"net/http"

	"github.com/actionartem/taskganttback/internal/model"

	"github.com/gin-gonic/gin"
)

// handleListTags 返回全部标签，按 id 升序。
func (s *Server) handleListTags(c *gin.Context) {
	tags, err := s.store.ListTags(c.Request.Context())
	if err != nil {
		s.logger.Error("list tags failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, tags)
}

type createTagRequest struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

// handleCreateTag 创建标签，颜色缺省为 #999999。
func (s *Server) handleCreateTag(c *gin.Context) {
	var req createTagRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	tag := model.Tag{Title: req.Title, Color: req.Color}
	if tag.Color == "" {
		tag.Color = "#999999"
	}
	if err := s.store.CreateTag(c.Request.Context(), &tag); err != nil {
		s.logger.Error("create tag failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusCreated, tag)
}

// handleDeleteTag 删除标签及其所有任务关联。幂等。
func (s *Server) handleDeleteTag(c *gin.Context) {
	id, ok := paramUint(c, "tagId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag id"})
		return
	}

	if err := s.store.DeleteTag(c.Request.Context(), id); err != nil {
		s.logger.Error("delete tag failed", slog.Uint64("tag_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
