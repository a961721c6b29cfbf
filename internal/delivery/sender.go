package delivery

import (
	"context"
	"path/filepath"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/pipeline"
	"github.com/smysle/sakura-dlbot-go/pkg/utils"
)

// audioExts 按扩展名识别音频成品
var audioExts = map[string]bool{
	".m4a": true, ".mp3": true, ".ogg": true, ".opus": true, ".flac": true,
}

// BotSender 主 Bot 直传实现
type BotSender struct {
	bot *tele.Bot
}

// NewBotSender 创建直传发送器
func NewBotSender(bot *tele.Bot) *BotSender {
	return &BotSender{bot: bot}
}

// SendMedia 按成品类型选择音频/视频/文档发送
func (s *BotSender) SendMedia(ctx context.Context, req *pipeline.Request, path string) error {
	chat := &tele.Chat{ID: req.ChatID}
	caption := buildCaption(req)
	ext := strings.ToLower(filepath.Ext(path))

	var media interface{}
	switch {
	case req.AudioOnly || audioExts[ext]:
		media = &tele.Audio{
			File:     tele.FromDisk(path),
			Caption:  caption,
			Title:    req.Title,
			Duration: int(req.Duration),
			FileName: filepath.Base(path),
		}
	case ext == ".mp4" || ext == ".webm" || ext == ".mkv":
		media = &tele.Video{
			File:      tele.FromDisk(path),
			Caption:   caption,
			Duration:  int(req.Duration),
			FileName:  filepath.Base(path),
			Streaming: true,
		}
	default:
		media = &tele.Document{
			File:     tele.FromDisk(path),
			Caption:  caption,
			FileName: filepath.Base(path),
		}
	}

	_, err := s.bot.Send(chat, media)
	return err
}

// buildCaption 成品说明文字
func buildCaption(req *pipeline.Request) string {
	title := req.Title
	if title == "" {
		title = req.URL
	}
	caption := "📦 " + utils.TruncateText(title, 200)
	if req.Bytes > 0 {
		caption += "\n💾 " + utils.FormatBytes(req.Bytes)
	}
	if req.Duration > 0 {
		caption += "  ⏱ " + utils.FormatDuration(req.Duration)
	}
	return caption
}
