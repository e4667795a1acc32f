package model

import "time"

// User 表示系统用户。
//
// 密码哈希可以为 NULL：通过 POST /users 引导创建的用户没有口令，
// 之后只能通过 Telegram 绑定码关联身份。
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`                                // 用户 ID
	Login        string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"login"` // 登录名（唯一）
	PasswordHash *string   `gorm:"type:varchar(191)" json:"-"`                          // bcrypt 哈希，可为 NULL
	Name         string    `gorm:"not null" json:"name"`                                // 显示名
	RoleText     string    `gorm:"type:varchar(191);default:''" json:"role_text"`       // 自由文本角色
	TelegramID   *int64    `gorm:"uniqueIndex" json:"telegram_id"`                      // 绑定的 Telegram chat id（唯一，可为 NULL）
	IsSuperadmin bool      `gorm:"default:false" json:"is_superadmin"`                  // 超级管理员不可删除
	IsActive     bool      `gorm:"default:true" json:"-"`
	FirstName    string    `gorm:"default:''" json:"-"`
	LastName     string    `gorm:"default:''" json:"-"`
	CreatedAt    time.Time `json:"-"` // 创建时间
}
