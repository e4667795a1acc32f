package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/actionartem/taskganttback/internal/model"
)

func TestListTasks_FiltersNarrow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ivan := mustCreateUser(t, s, "ivan", "Ivan")
	petr := mustCreateUser(t, s, "petr", "Petr")

	mustCreateTask(t, s, &model.Task{Title: "Deploy staging", AssigneeUserID: &ivan.ID, Status: "new", Priority: "high"})
	mustCreateTask(t, s, &model.Task{Title: "Write report", AssigneeUserID: &ivan.ID, Status: "done", Priority: "low"})
	mustCreateTask(t, s, &model.Task{Title: "Deploy prod", AssigneeUserID: &petr.ID, Status: "new", Priority: "high"})

	all, err := s.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}

	byAssignee, err := s.ListTasks(ctx, TaskFilter{AssigneeID: &ivan.ID})
	if err != nil {
		t.Fatalf("list by assignee: %v", err)
	}
	if len(byAssignee) != 2 {
		t.Fatalf("expected 2 tasks for ivan, got %d", len(byAssignee))
	}

	// 过滤器是 AND 叠加
	status := "new"
	narrowed, err := s.ListTasks(ctx, TaskFilter{AssigneeID: &ivan.ID, Status: &status})
	if err != nil {
		t.Fatalf("list narrowed: %v", err)
	}
	if len(narrowed) != 1 || narrowed[0].Title != "Deploy staging" {
		t.Fatalf("expected only 'Deploy staging', got %+v", narrowed)
	}
	if narrowed[0].AssigneeName == nil || *narrowed[0].AssigneeName != "Ivan" {
		t.Fatalf("expected assignee name joined, got %v", narrowed[0].AssigneeName)
	}
}

func TestListTasks_SearchCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateTask(t, s, &model.Task{Title: "Fix LOGIN page", Description: strPtr("broken css")})
	mustCreateTask(t, s, &model.Task{Title: "Other", Description: strPtr("contains Login word")})
	mustCreateTask(t, s, &model.Task{Title: "Unrelated"})

	search := "login"
	got, err := s.ListTasks(ctx, TaskFilter{Search: &search})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches across title and description, got %d", len(got))
	}
}

func TestListTasks_TagsNeverNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tagged := mustCreateTask(t, s, &model.Task{Title: "Tagged"})
	mustCreateTask(t, s, &model.Task{Title: "Bare"})
	tag := mustCreateTag(t, s, "backend")
	if err := s.AddTagToTask(ctx, tagged.ID, tag.ID); err != nil {
		t.Fatalf("add tag: %v", err)
	}

	got, err := s.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, task := range got {
		if task.Tags == nil {
			t.Fatalf("task %q has nil tags, want empty slice", task.Title)
		}
	}

	tagID := tag.ID
	byTag, err := s.ListTasks(ctx, TaskFilter{TagID: &tagID})
	if err != nil {
		t.Fatalf("list by tag: %v", err)
	}
	if len(byTag) != 1 || byTag[0].Title != "Tagged" {
		t.Fatalf("expected only the tagged task, got %+v", byTag)
	}
	if len(byTag[0].Tags) != 1 || byTag[0].Tags[0].Title != "backend" {
		t.Fatalf("expected tag list on the task, got %+v", byTag[0].Tags)
	}
}

func TestCreateTask_ClientSuppliedIDConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.Task{Title: "First", Status: "new", Priority: "low"}
	first.ID = 500
	if err := s.CreateTask(ctx, first); err != nil {
		t.Fatalf("create with client id: %v", err)
	}

	second := &model.Task{Title: "Second", Status: "new", Priority: "low"}
	second.ID = 500
	if err := s.CreateTask(ctx, second); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateTask_UnknownAssignee(t *testing.T) {
	s := newTestStore(t)

	task := &model.Task{Title: "Orphan", Status: "new", Priority: "low", AssigneeUserID: uintPtr(404)}
	if err := s.CreateTask(context.Background(), task); !errors.Is(err, ErrBadAssignee) {
		t.Fatalf("expected ErrBadAssignee, got %v", err)
	}
}

func TestUpdateTask_AssigneeAbsentKeepsValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ivan := mustCreateUser(t, s, "ivan", "Ivan")
	task := mustCreateTask(t, s, &model.Task{Title: "T", AssigneeUserID: &ivan.ID})

	got, reassigned, err := s.UpdateTask(ctx, task.ID, TaskPatch{Title: strPtr("T2")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if reassigned {
		t.Fatal("patch without assignee must not report reassignment")
	}
	if got.AssigneeUserID == nil || *got.AssigneeUserID != ivan.ID {
		t.Fatalf("assignee must be preserved, got %v", got.AssigneeUserID)
	}
	if got.Title != "T2" {
		t.Fatalf("title must be updated, got %q", got.Title)
	}
}

func TestUpdateTask_ExplicitNullClearsAssignee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ivan := mustCreateUser(t, s, "ivan", "Ivan")
	task := mustCreateTask(t, s, &model.Task{Title: "T", AssigneeUserID: &ivan.ID})

	got, reassigned, err := s.UpdateTask(ctx, task.ID, TaskPatch{Assignee: OptionalAssignee{Set: true, ID: nil}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if reassigned {
		t.Fatal("clearing the assignee must not trigger a notification")
	}
	if got.AssigneeUserID != nil {
		t.Fatalf("expected assignee cleared, got %v", *got.AssigneeUserID)
	}
}

func TestUpdateTask_ReassignDetected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ivan := mustCreateUser(t, s, "ivan", "Ivan")
	petr := mustCreateUser(t, s, "petr", "Petr")
	task := mustCreateTask(t, s, &model.Task{Title: "T", AssigneeUserID: &ivan.ID})

	got, reassigned, err := s.UpdateTask(ctx, task.ID, TaskPatch{Assignee: OptionalAssignee{Set: true, ID: &petr.ID}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !reassigned {
		t.Fatal("changing the assignee must report reassignment")
	}
	if got.AssigneeUserID == nil || *got.AssigneeUserID != petr.ID {
		t.Fatalf("expected assignee petr, got %v", got.AssigneeUserID)
	}

	// 再发同样的值：无变化，不再通知
	_, reassigned, err = s.UpdateTask(ctx, task.ID, TaskPatch{Assignee: OptionalAssignee{Set: true, ID: &petr.ID}})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if reassigned {
		t.Fatal("same assignee must not be reported as reassignment")
	}
}

func TestUpdateTask_FromUnassigned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ivan := mustCreateUser(t, s, "ivan", "Ivan")
	task := mustCreateTask(t, s, &model.Task{Title: "T"})

	_, reassigned, err := s.UpdateTask(ctx, task.ID, TaskPatch{Assignee: OptionalAssignee{Set: true, ID: &ivan.ID}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !reassigned {
		t.Fatal("NULL -> user must count as reassignment")
	}
}

func TestUpdateTask_UnknownAssignee(t *testing.T) {
	s := newTestStore(t)
	task := mustCreateTask(t, s, &model.Task{Title: "T"})

	_, _, err := s.UpdateTask(context.Background(), task.ID, TaskPatch{Assignee: OptionalAssignee{Set: true, ID: uintPtr(404)}})
	if !errors.Is(err, ErrBadAssignee) {
		t.Fatalf("expected ErrBadAssignee, got %v", err)
	}
}

func TestUpdateTask_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.UpdateTask(context.Background(), 999, TaskPatch{Title: strPtr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTask_CleansAssociations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreateTask(t, s, &model.Task{Title: "T"})
	tag := mustCreateTag(t, s, "infra")
	if err := s.AddTagToTask(ctx, task.ID, tag.ID); err != nil {
		t.Fatalf("add tag: %v", err)
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var links int64
	if err := s.db.Model(&model.TaskTag{}).Where("task_id = ?", task.ID).Count(&links).Error; err != nil {
		t.Fatalf("count links: %v", err)
	}
	if links != 0 {
		t.Fatalf("expected task_tags cleaned, got %d rows", links)
	}

	// 标签本身保留
	tags, err := s.ListTags(ctx)
	if err != nil || len(tags) != 1 {
		t.Fatalf("tag must survive task deletion: %v, %d", err, len(tags))
	}
}

func TestDeleteTask_NotFound(t *testing.T) {
	s := newTestStore(t)

	if err := s.DeleteTask(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddTagToTask_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreateTask(t, s, &model.Task{Title: "T"})
	tag := mustCreateTag(t, s, "x")

	if err := s.AddTagToTask(ctx, task.ID, tag.ID); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := s.AddTagToTask(ctx, task.ID, tag.ID); err != nil {
		t.Fatalf("second add must be a no-op: %v", err)
	}

	var links int64
	if err := s.db.Model(&model.TaskTag{}).Where("task_id = ?", task.ID).Count(&links).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if links != 1 {
		t.Fatalf("expected a single link, got %d", links)
	}

	if err := s.RemoveTagFromTask(ctx, task.ID, tag.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveTagFromTask(ctx, task.ID, tag.ID); err != nil {
		t.Fatalf("second remove must be a no-op: %v", err)
	}
}

func TestDueTasksBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	linked := mustCreateUser(t, s, "linked", "Linked")
	unlinked := mustCreateUser(t, s, "unlinked", "Unlinked")
	linkTelegram(t, s, linked.ID, 555)

	soon := timePtr(time.Now().Add(time.Hour))
	far := timePtr(time.Now().Add(72 * time.Hour))

	mustCreateTask(t, s, &model.Task{Title: "Due soon", AssigneeUserID: &linked.ID, DueAt: soon})
	mustCreateTask(t, s, &model.Task{Title: "Done already", AssigneeUserID: &linked.ID, DueAt: soon, Status: "done"})
	mustCreateTask(t, s, &model.Task{Title: "Far away", AssigneeUserID: &linked.ID, DueAt: far})
	mustCreateTask(t, s, &model.Task{Title: "No chat", AssigneeUserID: &unlinked.ID, DueAt: soon})
	mustCreateTask(t, s, &model.Task{Title: "No due date", AssigneeUserID: &linked.ID})

	rows, err := s.DueTasksBefore(ctx, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 1 || rows[0].Title != "Due soon" {
		t.Fatalf("expected only 'Due soon', got %+v", rows)
	}
	if rows[0].UserID != linked.ID {
		t.Fatalf("expected user %d, got %d", linked.ID, rows[0].UserID)
	}
}
