package store

import (
	"context"

	"github.com/actionartem/taskganttback/internal/model"

	"gorm.io/gorm"
)

// ListTags 返回全部标签，按 ID 升序。
func (s *Store) ListTags(ctx context.Context) ([]model.Tag, error) {
	tags := []model.Tag{}
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// CreateTag 创建标签。
func (s *Store) CreateTag(ctx context.Context, t *model.Tag) error {
	return s.db.WithContext(ctx).Create(t).Error
}

// DeleteTag 删除标签：先清关联，再删标签本身。
//
// 删除不存在的标签不是错误（幂等）。
func (s *Store) DeleteTag(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tag_id = ?", id).Delete(&model.TaskTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Tag{}, id).Error
	})
}
