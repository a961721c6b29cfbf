package handlers

import (
	"fmt"
	"regexp"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/database/repository"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// urlPattern 消息里的第一个 http(s) 链接
var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// OnText 文本消息处理器：识别链接并受理下载
func OnText(c tele.Context) error {
	// 只在私聊受理下载
	if c.Chat().Type != tele.ChatPrivate {
		return nil
	}

	url := urlPattern.FindString(c.Text())
	if url == "" {
		return c.Send("🤔 没有找到链接，把视频链接发给我就可以下载啦")
	}
	url = strings.TrimRight(url, ".,;!?)]}>")

	user := c.Sender()
	repo := repository.NewUserRepository()
	if _, err := repo.EnsureExists(user.ID, user.Username, user.FirstName); err != nil {
		logger.Error().Err(err).Int64("tg", user.ID).Msg("创建用户记录失败")
		return c.Send("❌ 系统错误，请稍后重试")
	}

	// 状态消息：整个生命周期都在这条消息上更新
	msg, err := c.Bot().Send(c.Chat(), "🔍 正在解析链接…")
	if err != nil {
		logger.Error().Err(err).Msg("发送状态消息失败")
		return err
	}

	req := manager.Submit(user.ID, c.Chat().ID, msg.ID, url)
	logger.Info().
		Str("request_id", req.ID).
		Int64("user_id", user.ID).
		Msg("链接已受理")
	return nil
}

// Cancel /cancel 取消自己所有进行中的请求
func Cancel(c tele.Context) error {
	n := manager.CancelUser(c.Sender().ID)
	if n == 0 {
		return c.Send("📭 当前没有进行中的下载")
	}
	return c.Send(fmt.Sprintf("🚫 已取消 %d 个下载", n))
}
