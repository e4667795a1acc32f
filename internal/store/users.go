package store

import (
	"context"
	"errors"

	"github.com/actionartem/taskganttback/internal/model"

	"gorm.io/gorm"
)

// UserByLogin 按登录名查找用户。
func (s *Store) UserByLogin(ctx context.Context, login string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("login = ?", login).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UserByID 按 ID 查找用户。
func (s *Store) UserByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListUsers 返回全部用户，按 ID 升序。
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser 创建用户。
//
// 登录名重复不做预查询，靠唯一索引快速失败（返回 ErrDuplicate）。
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateUserProfile 局部更新用户资料。
//
// COALESCE 语义：nil 字段保留原值。返回更新后的记录。
func (s *Store) UpdateUserProfile(ctx context.Context, id uint, name, roleText *string, telegramID *int64) (*model.User, error) {
	updates := map[string]interface{}{}
	if name != nil {
		updates["name"] = *name
	}
	if roleText != nil {
		updates["role_text"] = *roleText
	}
	if telegramID != nil {
		updates["telegram_id"] = *telegramID
	}

	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return s.UserByID(ctx, id)
}

// DeleteUser 删除用户。
//
// 超级管理员受保护，返回 ErrForbidden；删除不存在的用户不报错。
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	var u model.User
	err := s.db.WithContext(ctx).Select("id", "is_superadmin").First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if u.IsSuperadmin {
		return ErrForbidden
	}
	return s.db.WithContext(ctx).Delete(&model.User{}, id).Error
}

// TelegramChatID 返回用户绑定的 Telegram chat id。
//
// 第二个返回值表示是否存在绑定；用户不存在也视为未绑定。
func (s *Store) TelegramChatID(ctx context.Context, userID uint) (int64, bool, error) {
	var u model.User
	err := s.db.WithContext(ctx).Select("id", "telegram_id").First(&u, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if u.TelegramID == nil {
		return 0, false, nil
	}
	return *u.TelegramID, true, nil
}

// userExists 写入前的负责人存在性校验（尽力而为，不是外键）。
func (s *Store) userExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
