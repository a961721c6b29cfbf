package handlers

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/internal/database/repository"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// Start /start 命令处理器
func Start(c tele.Context) error {
	cfg := config.Get()
	user := c.Sender()

	// 确保用户存在于数据库
	repo := repository.NewUserRepository()
	if _, err := repo.EnsureExists(user.ID, user.Username, user.FirstName); err != nil {
		logger.Error().Err(err).Int64("tg", user.ID).Msg("创建用户记录失败")
		return c.Send("❌ 系统错误，请稍后重试")
	}

	text := fmt.Sprintf(
		"**✨ 欢迎使用 %s**\n\n"+
			"🍉__你好鸭 [%s](tg://user?id=%d)__\n\n"+
			"直接把视频链接发给我，我来帮你下载：\n"+
			"· 🎬 选择清晰度或仅音频\n"+
			"· 📦 大文件自动走中转频道\n"+
			"· 📜 /history 查看下载记录\n"+
			"· 📊 /stats 查看我的统计\n",
		cfg.BotName, user.FirstName, user.ID,
	)

	// 发送带图片的消息
	if cfg.BotPhoto != "" {
		photo := &tele.Photo{
			File:    tele.FromURL(cfg.BotPhoto),
			Caption: text,
		}
		return c.Send(photo, tele.ModeMarkdown)
	}
	return c.Send(text, tele.ModeMarkdown)
}

// Help /help 命令处理器
func Help(c tele.Context) error {
	text := "📖 **使用说明**\n\n" +
		"1️⃣ 把视频链接发给我\n" +
		"2️⃣ 在弹出的键盘里选择清晰度，或选仅音频\n" +
		"3️⃣ 等待下载完成，文件会直接发给你\n\n" +
		"· 超过 Bot 直传上限的大文件会经中转频道送达\n" +
		"· 下载过程中可随时点 ❌ 取消\n" +
		"· /history 最近下载  /stats 我的统计"
	return c.Send(text, tele.ModeMarkdown)
}
