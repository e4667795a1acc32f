package model

import (
	"time"
)

// Task 表示一条扁平的任务记录。
//
// 没有看板、没有历史：状态与优先级都是自由文本。
// 任务与标签是多对多关系（通过 task_tags 表关联）。
// ID 允许客户端自带（必须全局唯一），否则由数据库自增分配。
type Task struct {
	ID          uint    `gorm:"primaryKey" json:"id"`                          // 任务唯一标识
	Title       string  `gorm:"not null" json:"title"`                         // 标题（必填）
	Description *string `json:"description"`                                   // 描述，可为 NULL
	Status      string  `gorm:"type:varchar(64);default:new" json:"status"`    // 状态自由文本，默认 "new"
	Priority    string  `gorm:"type:varchar(64);default:low" json:"priority"`  // 优先级自由文本，默认 "low"

	AssigneeUserID *uint      `gorm:"index" json:"assignee_user_id"` // 负责人，可为 NULL
	StartAt        *time.Time `json:"start_at"`                      // 开始时间
	DueAt          *time.Time `json:"due_at"`                        // 截止时间
	LinkURL        *string    `json:"link_url"`                      // 外部链接

	CreatedBy *uint `json:"created_by"` // 创建者
	UpdatedBy *uint `json:"updated_by"` // 最后修改者

	CreatedAt time.Time `json:"created_at"` // 创建时间
	UpdatedAt time.Time `json:"updated_at"` // 每次变更都会刷新
}

// Tag 表示一个全局标签。
type Tag struct {
	ID    uint   `gorm:"primaryKey" json:"id"`                            // 标签 ID
	Title string `gorm:"not null" json:"title"`                           // 标签名
	Color string `gorm:"type:varchar(16);default:#999999" json:"color"`   // 颜色，默认中性灰
}

// TaskTag 是任务与标签的关联表（多对多中间表）。
//
// 复合主键保证 (task_id, tag_id) 唯一，重复插入是幂等的。
type TaskTag struct {
	TaskID uint `gorm:"primaryKey"` // 任务 ID
	TagID  uint `gorm:"primaryKey"` // 标签 ID
}

// TelegramLoginCode 是一次性绑定码。
//
// 同一用户允许多条未使用的码；兑换时惰性比较 expires_at，
// 不做后台清扫。兑换成功后该用户的所有码一并删除。
type TelegramLoginCode struct {
	ID        uint      `gorm:"primaryKey"`              // 记录 ID
	UserID    uint      `gorm:"index;not null"`          // 所属用户
	Code      string    `gorm:"type:varchar(6);index"`   // 6 位十进制码
	CreatedAt time.Time // 签发时间
	ExpiresAt time.Time `gorm:"index"` // 签发时间 + 5 分钟
}
