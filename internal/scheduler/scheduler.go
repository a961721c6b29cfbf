// Package scheduler 定时任务调度
package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/internal/database/repository"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
	"github.com/smysle/sakura-dlbot-go/pkg/utils"
)

// Scheduler 定时任务调度器
type Scheduler struct {
	cron *gocron.Scheduler
	cfg  *config.Config
	bot  *tele.Bot
}

var instance *Scheduler

// New 创建调度器
func New(cfg *config.Config) *Scheduler {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	s := gocron.NewScheduler(loc)
	s.SetMaxConcurrentJobs(2, gocron.RescheduleMode)

	instance = &Scheduler{
		cron: s,
		cfg:  cfg,
	}

	return instance
}

// Get 获取调度器实例
func Get() *Scheduler {
	return instance
}

// SetBot 设置 Bot 实例（用于发送消息）
func (s *Scheduler) SetBot(bot *tele.Bot) {
	s.bot = bot
}

// Start 启动调度器
func (s *Scheduler) Start() {
	logger.Info().Msg("启动定时任务调度器")

	// 注册定时任务
	s.registerJobs()

	// 异步启动
	s.cron.StartAsync()
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	logger.Info().Msg("停止定时任务调度器")
	s.cron.Stop()
}

// registerJobs 注册所有定时任务
func (s *Scheduler) registerJobs() {
	cfg := s.cfg.Scheduler

	// 清理残留临时文件 - 每小时
	if cfg.TempSweep {
		s.cron.Every(1).Hour().Do(s.sweepTempFiles)
		logger.Info().Msg("已注册: 临时文件清理任务 (每小时)")
	}

	// 下载统计日报 - 每天晚上 23 点
	if cfg.DailySummary {
		s.cron.Every(1).Day().At("23:00").Do(s.sendDailySummary)
		logger.Info().Msg("已注册: 下载日报任务 (每天 23:00)")
	}
}

// sweepTempFiles 清掉超龄的临时下载目录
//
// 正常流程结束时管线自己会清理，这里兜底处理进程崩溃留下的残骸。
func (s *Scheduler) sweepTempFiles() {
	root := s.cfg.Download.TempPath
	maxAge := time.Duration(s.cfg.Scheduler.SweepAgeHour) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", root).Msg("读取临时目录失败")
		}
		return
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			logger.Warn().Err(err).Str("dir", e.Name()).Msg("清理临时目录失败")
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("清理残留临时目录完成")
	}
}

// sendDailySummary 给 Owner 发送当天的下载概况
func (s *Scheduler) sendDailySummary() {
	if s.bot == nil || s.cfg.Owner == 0 {
		return
	}

	repo := repository.NewDownloadRepository()
	since := time.Now().Truncate(24 * time.Hour)

	today, err := repo.CountSince(since)
	if err != nil {
		logger.Error().Err(err).Msg("查询今日流水失败")
		return
	}
	stats, err := repo.GlobalStats()
	if err != nil {
		logger.Error().Err(err).Msg("查询全局统计失败")
		return
	}

	text := fmt.Sprintf(
		"📅 **下载日报**\n\n"+
			"**· 📦 今日请求** | %d\n"+
			"**· ✅ 累计送达** | %d\n"+
			"**· ❌ 累计失败** | %d\n"+
			"**· 💾 累计流量** | %s\n",
		today, stats.Delivered, stats.Failed,
		utils.FormatBytes(stats.Bytes),
	)

	owner := &tele.Chat{ID: s.cfg.Owner}
	if _, err := s.bot.Send(owner, text, tele.ModeMarkdown); err != nil {
		logger.Warn().Err(err).Msg("发送下载日报失败")
	}
}
