package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/actionartem/taskganttback/internal/pkg/notify"
	"github.com/actionartem/taskganttback/internal/store"

	"github.com/robfig/cron/v3"
)

// Sweeper 每天定时扫描到期任务并给负责人发送汇总提醒。
type Sweeper struct {
	store      *store.Store
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	cron       *cron.Cron
}

// NewSweeper 创建提醒扫描器。
func NewSweeper(st *store.Store, dispatcher notify.Dispatcher, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
		cron:       cron.New(cron.WithSeconds()),
	}
}

// Start 注册每日任务并启动调度。timeStr 形如 "09:00"。
func (s *Sweeper) Start(timeStr string) error {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx, time.Now().Add(24*time.Hour))
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("reminder sweeper started", slog.String("time", timeStr))
	return nil
}

// Stop 停止调度并等待进行中的任务结束。
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep 执行一次扫描：把截止时间早于 before 的未完成任务
// 按负责人汇总成一条消息派发出去。
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) {
	rows, err := s.store.DueTasksBefore(ctx, before)
	if err != nil {
		s.logger.Error("due tasks scan failed", slog.String("error", err.Error()))
		return
	}
	if len(rows) == 0 {
		return
	}

	// rows 已按 user_id 排序，按相邻分组即可
	var (
		current uint
		lines   []string
	)
	flush := func() {
		if len(lines) == 0 {
			return
		}
		text := fmt.Sprintf("⏰ You have %d task(s) due soon:\n%s", len(lines), strings.Join(lines, "\n"))
		s.dispatcher.Dispatch(current, text)
		lines = lines[:0]
	}
	for _, row := range rows {
		if row.UserID != current {
			flush()
			current = row.UserID
		}
		lines = append(lines, fmt.Sprintf("• #%d %s (due %s)", row.TaskID, row.Title, row.DueAt.Format("2006-01-02 15:04")))
	}
	flush()

	s.logger.Info("reminder sweep done", slog.Int("rows", len(rows)))
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron 格式: 秒 分 时 日 月 周
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
