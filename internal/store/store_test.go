package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/actionartem/taskganttback/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// newTestStore 打开每个测试独享的内存库。
func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return New(db)
}

func mustCreateUser(t *testing.T, s *Store, login, name string) *model.User {
	t.Helper()
	u := &model.User{Login: login, Name: name, IsActive: true}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", login, err)
	}
	return u
}

func mustCreateTask(t *testing.T, s *Store, task *model.Task) *model.Task {
	t.Helper()
	if task.Status == "" {
		task.Status = "new"
	}
	if task.Priority == "" {
		task.Priority = "low"
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task %q: %v", task.Title, err)
	}
	return task
}

func mustCreateTag(t *testing.T, s *Store, title string) *model.Tag {
	t.Helper()
	tag := &model.Tag{Title: title, Color: "#999999"}
	if err := s.CreateTag(context.Background(), tag); err != nil {
		t.Fatalf("create tag %s: %v", title, err)
	}
	return tag
}

func linkTelegram(t *testing.T, s *Store, userID uint, chatID int64) {
	t.Helper()
	if _, err := s.UpdateUserProfile(context.Background(), userID, nil, nil, &chatID); err != nil {
		t.Fatalf("link telegram for user %d: %v", userID, err)
	}
}

func timePtr(v time.Time) *time.Time { return &v }

func strPtr(v string) *string { return &v }

func uintPtr(v uint) *uint { return &v }
