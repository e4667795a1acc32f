package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/actionartem/taskganttback/internal/model"
	"github.com/actionartem/taskganttback/internal/store"

	"github.com/gin-gonic/gin"
)

// handleListTasks 返回任务列表，支持负责人/状态/优先级/标签/搜索过滤。
func (s *Server) handleListTasks(c *gin.Context) {
	var f store.TaskFilter

	if raw := c.Query("assignee_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignee_id"})
			return
		}
		id := uint(v)
		f.AssigneeID = &id
	}
	if raw := c.Query("status"); raw != "" {
		f.Status = &raw
	}
	if raw := c.Query("priority"); raw != "" {
		f.Priority = &raw
	}
	if raw := c.Query("tag_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag_id"})
			return
		}
		id := uint(v)
		f.TagID = &id
	}
	if raw := c.Query("search"); raw != "" {
		f.Search = &raw
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), f)
	if err != nil {
		s.logger.Error("list tasks failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

type createTaskWebRequest struct {
	ID             *flexUint  `json:"id"` // 客户端可以自带 ID
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	AssigneeUserID *flexUint  `json:"assignee_user_id"`
	StartAt        *time.Time `json:"start_at"`
	DueAt          *time.Time `json:"due_at"`
	LinkURL        *string    `json:"link_url"`
	CreatedBy      *flexUint  `json:"created_by"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
}

// handleCreateTask 创建任务，负责人存在时异步派发通知。
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskWebRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	task := model.Task{
		Title:          req.Title,
		Description:    optStr(req.Description),
		AssigneeUserID: req.AssigneeUserID.Uint(),
		StartAt:        req.StartAt,
		DueAt:          req.DueAt,
		LinkURL:        optStr(req.LinkURL),
		CreatedBy:      req.CreatedBy.Uint(),
		UpdatedBy:      req.CreatedBy.Uint(),
		Priority:       req.Priority,
		Status:         req.Status,
	}
	if task.Priority == "" {
		task.Priority = "low"
	}
	if task.Status == "" {
		task.Status = "new"
	}
	if id := req.ID.Uint(); id != nil {
		task.ID = *id
	}

	err := s.store.CreateTask(c.Request.Context(), &task)
	if errors.Is(err, store.ErrDuplicate) {
		c.JSON(http.StatusConflict, gin.H{"error": "id_already_exists"})
		return
	}
	if errors.Is(err, store.ErrBadAssignee) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assignee not found"})
		return
	}
	if err != nil {
		s.logger.Error("create task failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	if task.AssigneeUserID != nil {
		s.dispatcher.Dispatch(*task.AssigneeUserID,
			fmt.Sprintf("🆕 New task #%d: %s", task.ID, task.Title))
	}

	c.JSON(http.StatusCreated, gin.H{"id": task.ID})
}

type updateTaskWebRequest struct {
	Title          *string      `json:"title"`
	Description    *string      `json:"description"`
	Status         *string      `json:"status"`
	AssigneeUserID optionalUint `json:"assignee_user_id"`
	StartAt        *time.Time   `json:"start_at"`
	DueAt          *time.Time   `json:"due_at"`
	LinkURL        *string      `json:"link_url"`
	Priority       *string      `json:"priority"`
	UpdatedBy      *flexUint    `json:"updated_by"`
}

// handleUpdateTask 部分更新任务。
//
// assignee_user_id 三态：缺省保留、null 清空、值改派。改派成功且
// 新负责人非空时派发通知，检测由存储层的条件更新完成。
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	var req updateTaskWebRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := store.TaskPatch{
		Title:       optStr(req.Title),
		Description: optStr(req.Description),
		Status:      optStr(req.Status),
		Priority:    optStr(req.Priority),
		LinkURL:     optStr(req.LinkURL),
		StartAt:     req.StartAt,
		DueAt:       req.DueAt,
		UpdatedBy:   req.UpdatedBy.Uint(),
	}
	if req.AssigneeUserID.Set {
		patch.Assignee = store.OptionalAssignee{Set: true, ID: req.AssigneeUserID.Value}
	}

	task, reassigned, err := s.store.UpdateTask(c.Request.Context(), id, patch)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if errors.Is(err, store.ErrBadAssignee) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assignee not found"})
		return
	}
	if err != nil {
		s.logger.Error("update task failed", slog.Uint64("task_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	if reassigned && task.AssigneeUserID != nil {
		s.dispatcher.Dispatch(*task.AssigneeUserID,
			fmt.Sprintf("📌 Task #%d assigned to you: %s", task.ID, task.Title))
	}

	c.JSON(http.StatusOK, task)
}

// handleDeleteTask 删除任务及其标签关联。
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	err := s.store.DeleteTask(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		s.logger.Error("delete task failed", slog.Uint64("task_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.Status(http.StatusNoContent)
}

type taskTagRequest struct {
	TagID *flexUint `json:"tag_id"`
}

// handleAddTaskTag 给任务挂标签，重复挂接是无操作。
func (s *Server) handleAddTaskTag(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	var req taskTagRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TagID.Uint() == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tag_id is required"})
		return
	}

	if err := s.store.AddTagToTask(c.Request.Context(), id, *req.TagID.Uint()); err != nil {
		s.logger.Error("add task tag failed", slog.Uint64("task_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleRemoveTaskTag 摘掉任务上的标签。幂等。
func (s *Server) handleRemoveTaskTag(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	tagID, ok := paramUint(c, "tagId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag id"})
		return
	}

	if err := s.store.RemoveTagFromTask(c.Request.Context(), id, tagID); err != nil {
		s.logger.Error("remove task tag failed", slog.Uint64("task_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
