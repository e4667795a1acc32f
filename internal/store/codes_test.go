package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/actionartem/taskganttback/internal/model"
)

func TestRedeemLoginCode_BindsAndInvalidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "ivan", "Ivan")

	if _, err := s.IssueLoginCode(ctx, u.ID, "111111", 5*time.Minute); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := s.IssueLoginCode(ctx, u.ID, "222222", 5*time.Minute); err != nil {
		t.Fatalf("issue second: %v", err)
	}

	got, err := s.RedeemLoginCode(ctx, 9001, "222222", "Ivan TG")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got.TelegramID == nil || *got.TelegramID != 9001 {
		t.Fatalf("expected telegram bound, got %v", got.TelegramID)
	}
	if got.Name != "Ivan TG" {
		t.Fatalf("expected name updated from bot, got %q", got.Name)
	}

	// 兑换后该用户的全部码作废，包括未用到的 111111
	if _, err := s.RedeemLoginCode(ctx, 9002, "111111", ""); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for sibling code, got %v", err)
	}
}

func TestRedeemLoginCode_SingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "ivan", "Ivan")

	if _, err := s.IssueLoginCode(ctx, u.ID, "333333", 5*time.Minute); err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := s.RedeemLoginCode(ctx, 1, "333333", ""); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if _, err := s.RedeemLoginCode(ctx, 2, "333333", ""); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode on reuse, got %v", err)
	}
}

func TestRedeemLoginCode_Expired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "ivan", "Ivan")

	if _, err := s.IssueLoginCode(ctx, u.ID, "444444", -time.Minute); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := s.RedeemLoginCode(ctx, 1, "444444", ""); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for expired code, got %v", err)
	}
}

func TestRedeemLoginCode_Unknown(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.RedeemLoginCode(context.Background(), 1, "000000", ""); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestRedeemLoginCode_EmptyNameKeepsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "ivan", "Ivan")

	if _, err := s.IssueLoginCode(ctx, u.ID, "555555", 5*time.Minute); err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := s.RedeemLoginCode(ctx, 1, "555555", "")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got.Name != "Ivan" {
		t.Fatalf("empty bot name must keep the old one, got %q", got.Name)
	}
}

func TestRedeemLoginCode_RebindStealsChatID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := mustCreateUser(t, s, "old", "Old")
	fresh := mustCreateUser(t, s, "fresh", "Fresh")
	linkTelegram(t, s, old.ID, 42)

	if _, err := s.IssueLoginCode(ctx, fresh.ID, "666666", 5*time.Minute); err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := s.RedeemLoginCode(ctx, 42, "666666", "")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got.ID != fresh.ID || got.TelegramID == nil || *got.TelegramID != 42 {
		t.Fatalf("expected chat 42 moved to fresh user, got %+v", got)
	}

	oldUser, err := s.UserByID(ctx, old.ID)
	if err != nil {
		t.Fatalf("load old user: %v", err)
	}
	if oldUser.TelegramID != nil {
		t.Fatalf("previous owner must be unbound, got %v", *oldUser.TelegramID)
	}
}

func TestRedeemLoginCode_LatestCodeWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreateUser(t, s, "a", "A")
	b := mustCreateUser(t, s, "b", "B")

	// 两个用户撞出同一个码值：最新签发的那条生效
	now := time.Now()
	if err := s.db.Create(&model.TelegramLoginCode{UserID: a.ID, Code: "777777", CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(4 * time.Minute)}).Error; err != nil {
		t.Fatalf("seed old code: %v", err)
	}
	if err := s.db.Create(&model.TelegramLoginCode{UserID: b.ID, Code: "777777", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}).Error; err != nil {
		t.Fatalf("seed new code: %v", err)
	}

	got, err := s.RedeemLoginCode(ctx, 7, "777777", "")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got.ID != b.ID {
		t.Fatalf("expected the newest code's owner %d, got %d", b.ID, got.ID)
	}
}
