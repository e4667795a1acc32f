package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/actionartem/taskganttback/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskFilter 是任务列表的过滤条件。
//
// 每个非 nil 字段追加一个 AND 谓词；nil 字段不参与过滤。
type TaskFilter struct {
	AssigneeID *uint   // 负责人
	Status     *string // 状态精确匹配
	Priority   *string // 优先级精确匹配
	TagID      *uint   // 通过 EXISTS 子查询匹配关联表
	Search     *string // 标题或描述的大小写不敏感子串
}

// TaskWithMeta 是列表返回的任务：内嵌负责人姓名/角色与标签列表。
type TaskWithMeta struct {
	model.Task
	AssigneeName *string     `json:"assignee_name"`
	AssigneeRole *string     `json:"assignee_role"`
	Tags         []model.Tag `json:"tags"`
}

// taskRow 列表基础查询的扫描目标。
type taskRow struct {
	model.Task
	AssigneeName *string `gorm:"column:assignee_name"`
	AssigneeRole *string `gorm:"column:assignee_role"`
}

// ListTasks 返回满足过滤条件的任务，按 ID 升序。
//
// 标签单独用一条批量查询取回再按任务分组，避免 JOIN 造成的行膨胀；
// 没有标签的任务得到空切片而不是 null。
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]TaskWithMeta, error) {
	q := s.db.WithContext(ctx).Table("tasks t").
		Select("t.id, t.title, t.description, t.status, t.priority, " +
			"t.assignee_user_id, t.start_at, t.due_at, t.link_url, " +
			"t.created_by, t.updated_by, t.created_at, t.updated_at, " +
			"u.name AS assignee_name, u.role_text AS assignee_role").
		Joins("LEFT JOIN users u ON u.id = t.assignee_user_id")

	if f.AssigneeID != nil {
		q = q.Where("t.assignee_user_id = ?", *f.AssigneeID)
	}
	if f.Status != nil {
		q = q.Where("t.status = ?", *f.Status)
	}
	if f.Priority != nil {
		q = q.Where("t.priority = ?", *f.Priority)
	}
	if f.Search != nil {
		pattern := "%" + strings.ToLower(*f.Search) + "%"
		q = q.Where("LOWER(t.title) LIKE ? OR LOWER(t.description) LIKE ?", pattern, pattern)
	}
	if f.TagID != nil {
		q = q.Where("EXISTS (SELECT 1 FROM task_tags tt2 WHERE tt2.task_id = t.id AND tt2.tag_id = ?)", *f.TagID)
	}

	rows := []taskRow{}
	if err := q.Order("t.id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	tagsByTask, err := s.tagsForTasks(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]TaskWithMeta, 0, len(rows))
	for _, row := range rows {
		tags := tagsByTask[row.ID]
		if tags == nil {
			tags = []model.Tag{}
		}
		result = append(result, TaskWithMeta{
			Task:         row.Task,
			AssigneeName: row.AssigneeName,
			AssigneeRole: row.AssigneeRole,
			Tags:         tags,
		})
	}
	return result, nil
}

// tagsForTasks 批量取回一组任务的标签并按任务分组。
func (s *Store) tagsForTasks(ctx context.Context, taskIDs []uint) (map[uint][]model.Tag, error) {
	grouped := map[uint][]model.Tag{}
	if len(taskIDs) == 0 {
		return grouped, nil
	}

	type tagRow struct {
		TaskID uint   `gorm:"column:task_id"`
		ID     uint   `gorm:"column:id"`
		Title  string `gorm:"column:title"`
		Color  string `gorm:"column:color"`
	}
	rows := []tagRow{}
	err := s.db.WithContext(ctx).Table("task_tags tt").
		Select("tt.task_id, tg.id, tg.title, tg.color").
		Joins("JOIN tags tg ON tg.id = tt.tag_id").
		Where("tt.task_id IN ?", taskIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		grouped[row.TaskID] = append(grouped[row.TaskID], model.Tag{
			ID:    row.ID,
			Title: row.Title,
			Color: row.Color,
		})
	}
	return grouped, nil
}

// TaskByID 按 ID 查找任务。
func (s *Store) TaskByID(ctx context.Context, id uint) (*model.Task, error) {
	var t model.Task
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateTask 插入任务。
//
// 客户端自带 ID 的冲突不做预查询，靠主键约束快速失败（ErrDuplicate）。
// 负责人非空时校验其存在（ErrBadAssignee）。
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	if t.AssigneeUserID != nil {
		ok, err := s.userExists(ctx, *t.AssigneeUserID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBadAssignee
		}
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// OptionalAssignee 区分“字段缺省”与“显式置空”。
type OptionalAssignee struct {
	Set bool  // 请求中是否出现了该字段
	ID  *uint // nil 表示显式清空
}

// TaskPatch 是任务的局部更新。nil 字段保留原值。
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	LinkURL     *string
	StartAt     *time.Time
	DueAt       *time.Time
	Assignee    OptionalAssignee
	UpdatedBy   *uint
}

// UpdateTask 应用局部更新并返回更新后的任务。
//
// 负责人变更检测用旧值做条件更新（null 安全的 compare-and-set）：
// 只有带守卫的 UPDATE 真正生效，reassigned 才为真。守卫未命中说明
// 有并发修改，重读后重试一次，这一次不再认领通知。
func (s *Store) UpdateTask(ctx context.Context, id uint, p TaskPatch) (task *model.Task, reassigned bool, err error) {
	before, err := s.TaskByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if p.Assignee.Set && p.Assignee.ID != nil {
		ok, err := s.userExists(ctx, *p.Assignee.ID)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, ErrBadAssignee
		}
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if p.Title != nil {
		updates["title"] = *p.Title
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Status != nil {
		updates["status"] = *p.Status
	}
	if p.Priority != nil {
		updates["priority"] = *p.Priority
	}
	if p.LinkURL != nil {
		updates["link_url"] = *p.LinkURL
	}
	if p.StartAt != nil {
		updates["start_at"] = *p.StartAt
	}
	if p.DueAt != nil {
		updates["due_at"] = *p.DueAt
	}
	if p.UpdatedBy != nil {
		updates["updated_by"] = *p.UpdatedBy
	}
	if p.Assignee.Set {
		updates["assignee_user_id"] = p.Assignee.ID
	}

	changesAssignee := p.Assignee.Set && !uintPtrEqual(p.Assignee.ID, before.AssigneeUserID)

	if !changesAssignee {
		res := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, false, res.Error
		}
		task, err = s.TaskByID(ctx, id)
		return task, false, err
	}

	// 两次尝试：第一次守卫命中则由本次更新完成变更并触发通知；
	// 丢失竞争后用新读到的旧值再试一次，不再触发通知。
	for attempt := 0; attempt < 2; attempt++ {
		q := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id)
		if before.AssigneeUserID == nil {
			q = q.Where("assignee_user_id IS NULL")
		} else {
			q = q.Where("assignee_user_id = ?", *before.AssigneeUserID)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected > 0 {
			task, err = s.TaskByID(ctx, id)
			if err != nil {
				return nil, false, err
			}
			notify := attempt == 0 && p.Assignee.ID != nil
			return task, notify, nil
		}

		before, err = s.TaskByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if uintPtrEqual(p.Assignee.ID, before.AssigneeUserID) {
			// 并发方已经写入了同样的负责人，剩余字段走普通更新。
			res := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(updates)
			if res.Error != nil {
				return nil, false, res.Error
			}
			task, err = s.TaskByID(ctx, id)
			return task, false, err
		}
	}

	task, err = s.TaskByID(ctx, id)
	return task, false, err
}

// DeleteTask 在同一事务里清掉关联再删除任务。
func (s *Store) DeleteTask(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&model.TaskTag{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Task{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AddTagToTask 建立任务-标签关联；重复添加是无操作。
func (s *Store) AddTagToTask(ctx context.Context, taskID, tagID uint) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.TaskTag{TaskID: taskID, TagID: tagID}).Error
}

// RemoveTagFromTask 移除关联；关联不存在也不是错误。
func (s *Store) RemoveTagFromTask(ctx context.Context, taskID, tagID uint) error {
	return s.db.WithContext(ctx).
		Where("task_id = ? AND tag_id = ?", taskID, tagID).
		Delete(&model.TaskTag{}).Error
}

// DueTask 是到期提醒扫描出的一行。
type DueTask struct {
	UserID uint      `gorm:"column:user_id"`
	TaskID uint      `gorm:"column:task_id"`
	Title  string    `gorm:"column:title"`
	DueAt  time.Time `gorm:"column:due_at"`
}

// DueTasksBefore 返回截止时间早于 before、未完成且负责人已绑定
// Telegram 的任务，按负责人与截止时间排序。
func (s *Store) DueTasksBefore(ctx context.Context, before time.Time) ([]DueTask, error) {
	rows := []DueTask{}
	err := s.db.WithContext(ctx).Table("tasks t").
		Select("u.id AS user_id, t.id AS task_id, t.title, t.due_at").
		Joins("JOIN users u ON u.id = t.assignee_user_id").
		Where("t.due_at IS NOT NULL AND t.due_at < ?", before).
		Where("t.status <> ?", "done").
		Where("u.telegram_id IS NOT NULL").
		Order("u.id ASC, t.due_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
