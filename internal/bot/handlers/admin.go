// Package handlers 管理命令处理器
package handlers

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/internal/database/repository"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
	"github.com/smysle/sakura-dlbot-go/pkg/utils"
)

// Status /status 运行状态 [管理]
func Status(c tele.Context) error {
	cfg := config.Get()
	slots := manager.Slots()

	text := fmt.Sprintf(
		"🖥 **运行状态**\n\n"+
			"**· 🔄 进行中请求** | %d\n"+
			"**· 🎰 已占槽位** | %d / %d\n"+
			"**· ⏳ 排队请求** | %d\n"+
			"**· 🗂 状态缓存条目** | %d\n",
		manager.ActiveCount(),
		slots.Held(), cfg.Download.GlobalSlots,
		slots.QueueLen(),
		states.ActiveCount(),
	)
	return c.Send(text, tele.ModeMarkdown)
}

// GlobalStats /gstats 全局统计 [管理]
func GlobalStats(c tele.Context) error {
	dlRepo := repository.NewDownloadRepository()
	userRepo := repository.NewUserRepository()

	stats, err := dlRepo.GlobalStats()
	if err != nil {
		logger.Error().Err(err).Msg("查询全局统计失败")
		return c.Send("❌ 查询失败，请稍后重试")
	}
	users, err := userRepo.Count()
	if err != nil {
		logger.Error().Err(err).Msg("查询用户总数失败")
		return c.Send("❌ 查询失败，请稍后重试")
	}

	text := fmt.Sprintf(
		"📈 **全局统计**\n\n"+
			"**· 👥 用户总数** | %d\n"+
			"**· 📦 请求总数** | %d\n"+
			"**· ✅ 成功送达** | %d\n"+
			"**· ❌ 失败** | %d\n"+
			"**· 💾 累计流量** | %s\n",
		users, stats.Total, stats.Delivered, stats.Failed,
		utils.FormatBytes(stats.Bytes),
	)
	return c.Send(text, tele.ModeMarkdown)
}

// TopUsers /top 下载排行 [管理]
func TopUsers(c tele.Context) error {
	repo := repository.NewUserRepository()
	users, err := repo.TopByDownloads(10)
	if err != nil {
		logger.Error().Err(err).Msg("查询排行失败")
		return c.Send("❌ 查询失败，请稍后重试")
	}
	if len(users) == 0 {
		return c.Send("📭 还没有任何下载记录")
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	sb.WriteString("🏆 **下载排行**\n\n")
	for i, u := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := fmt.Sprintf("%d", u.TG)
		if u.FirstName != nil && *u.FirstName != "" {
			name = *u.FirstName
		}
		sb.WriteString(fmt.Sprintf("%s %s · %d 次 · %s\n",
			rank, utils.TruncateText(name, 20), u.TotalDownloads,
			utils.FormatBytes(u.TotalBytes)))
	}
	return c.Send(sb.String(), tele.ModeMarkdown)
}

// ReloadConfig /reload 重载配置 [owner]
func ReloadConfig(c tele.Context) error {
	if _, err := config.Reload(); err != nil {
		logger.Error().Err(err).Msg("重载配置失败")
		return c.Send("❌ 重载配置失败: " + err.Error())
	}
	logger.Info().Msg("配置已重载")
	return c.Send("✅ 配置已重载")
}
