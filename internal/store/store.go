package store

import (
	"errors"
	"fmt"

	"github.com/actionartem/taskganttback/internal/model"

	gormMySQL "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// 存储层的哨兵错误，由 HTTP 边界映射为状态码。
var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate key")
	ErrForbidden   = errors.New("forbidden")
	ErrInvalidCode = errors.New("invalid or expired code")
	ErrBadAssignee = errors.New("assignee not found")
)

// Store 封装所有数据库访问。
//
// 所有查询都走参数绑定；唯一性冲突由索引约束兜底
// （gorm TranslateError 把违反唯一键翻译成 ErrDuplicatedKey）。
type Store struct {
	db *gorm.DB
}

// New 基于已打开的连接创建 Store。
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenMySQL 打开 MySQL 连接并执行自动迁移。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gormMySQL.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 执行自动迁移。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Tag{},
		&model.Task{},
		&model.TaskTag{},
		&model.TelegramLoginCode{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// DB 返回底层连接（用于健康检查与关闭）。
func (s *Store) DB() *gorm.DB {
	return s.db
}
