package store

import (
	"context"
	"errors"
	"time"

	"github.com/actionartem/taskganttback/internal/model"

	"gorm.io/gorm"
)

// IssueLoginCode 为用户签发一条一次性绑定码。
//
// 码值全局不唯一（设计上允许碰撞），过期在兑换时惰性判断。
func (s *Store) IssueLoginCode(ctx context.Context, userID uint, code string, ttl time.Duration) (*model.TelegramLoginCode, error) {
	now := time.Now()
	row := &model.TelegramLoginCode{
		UserID:    userID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// RedeemLoginCode 兑换绑定码：绑定 Telegram 身份并清空该用户的全部码。
//
// 候选是按 created_at 最新的未过期同值码。认领通过单条带条件的
// DELETE 完成——只有删到行的请求继续执行，并发兑换同一码值最多
// 一个成功。绑定时若该 chat id 已挂在别的用户上，先解除旧绑定
// （重新绑定语义）。name 非空时顺带更新显示名。
func (s *Store) RedeemLoginCode(ctx context.Context, telegramID int64, code string, name string) (*model.User, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var row model.TelegramLoginCode
		err := s.db.WithContext(ctx).
			Where("code = ? AND expires_at > ?", code, time.Now()).
			Order("created_at DESC, id DESC").
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidCode
			}
			return nil, err
		}

		// 认领：删得到这一行的请求才算赢。
		res := s.db.WithContext(ctx).Delete(&model.TelegramLoginCode{}, row.ID)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue // 输掉竞争，换下一个候选
		}

		var user *model.User
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&model.User{}).
				Where("telegram_id = ? AND id <> ?", telegramID, row.UserID).
				Update("telegram_id", nil).Error; err != nil {
				return err
			}

			updates := map[string]interface{}{"telegram_id": telegramID}
			if name != "" {
				updates["name"] = name
			}
			res := tx.Model(&model.User{}).Where("id = ?", row.UserID).Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrInvalidCode // 码的主人已被删除
			}

			// 其余未兑换的码一并作废
			if err := tx.Where("user_id = ?", row.UserID).Delete(&model.TelegramLoginCode{}).Error; err != nil {
				return err
			}

			var u model.User
			if err := tx.First(&u, row.UserID).Error; err != nil {
				return err
			}
			user = &u
			return nil
		})
		if err != nil {
			return nil, err
		}
		return user, nil
	}

	return nil, ErrInvalidCode
}
