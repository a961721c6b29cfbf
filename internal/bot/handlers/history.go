package handlers

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"github.com/smysle/sakura-dlbot-go/internal/database/repository"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
	"github.com/smysle/sakura-dlbot-go/pkg/utils"
)

// History /history 最近下载记录
func History(c tele.Context) error {
	user := c.Sender()
	repo := repository.NewDownloadRepository()

	records, err := repo.RecentByUser(user.ID, 10)
	if err != nil {
		logger.Error().Err(err).Int64("tg", user.ID).Msg("查询下载记录失败")
		return c.Send("❌ 查询失败，请稍后重试")
	}
	if len(records) == 0 {
		return c.Send("📭 还没有下载记录，把链接发给我试试吧")
	}

	var sb strings.Builder
	sb.WriteString("📜 **最近下载**\n\n")
	for _, d := range records {
		icon := "❌"
		if d.IsDelivered() {
			icon = "✅"
		}
		title := d.URL
		if d.Title != nil && *d.Title != "" {
			title = *d.Title
		}
		sb.WriteString(fmt.Sprintf("%s %s", icon, utils.TruncateText(title, 40)))
		if d.IsDelivered() && d.Bytes > 0 {
			sb.WriteString(fmt.Sprintf(" · %s", utils.FormatBytes(d.Bytes)))
		}
		if !d.IsDelivered() && d.ErrorKind != nil {
			sb.WriteString(fmt.Sprintf(" · `%s`", *d.ErrorKind))
		}
		sb.WriteString("\n")
	}

	return c.Send(sb.String(), tele.ModeMarkdown)
}

// MyStats /stats 用户个人统计
func MyStats(c tele.Context) error {
	user := c.Sender()
	repo := repository.NewUserRepository()

	u, err := repo.GetByTG(user.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Send("📭 还没有记录，发个链接开始吧")
	}
	if err != nil {
		logger.Error().Err(err).Int64("tg", user.ID).Msg("查询用户失败")
		return c.Send("❌ 查询失败，请稍后重试")
	}

	text := fmt.Sprintf(
		"📊 **我的统计**\n\n"+
			"**· ✅ 成功下载** | %d 次\n"+
			"**· 💾 累计流量** | %s\n"+
			"**· 📅 首次使用** | %s\n",
		u.TotalDownloads,
		utils.FormatBytes(u.TotalBytes),
		u.FirstSeen.Format("2006-01-02"),
	)
	return c.Send(text, tele.ModeMarkdown)
}
