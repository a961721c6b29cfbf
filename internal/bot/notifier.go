package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/bot/keyboards"
	"github.com/smysle/sakura-dlbot-go/internal/errkind"
	"github.com/smysle/sakura-dlbot-go/internal/extractor"
	"github.com/smysle/sakura-dlbot-go/internal/pipeline"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
	"github.com/smysle/sakura-dlbot-go/pkg/utils"
)

// chatNotifier 把管线事件渲染成状态消息的编辑
//
// 每个请求对应一条状态消息（受理时发出），整个生命周期都在
// 这条消息上原地更新，避免刷屏。
type chatNotifier struct {
	bot *tele.Bot
}

func newChatNotifier(bot *tele.Bot) *chatNotifier {
	return &chatNotifier{bot: bot}
}

// statusMessage 请求对应的状态消息定位
func (n *chatNotifier) statusMessage(req *pipeline.Request) *tele.Message {
	return &tele.Message{
		ID:   req.MessageID,
		Chat: &tele.Chat{ID: req.ChatID},
	}
}

// edit 编辑状态消息，编辑失败只记日志不中断管线
func (n *chatNotifier) edit(req *pipeline.Request, text string, opts ...interface{}) {
	if _, err := n.bot.Edit(n.statusMessage(req), text, opts...); err != nil {
		logger.Debug().Err(err).Str("request_id", req.ID).Msg("状态消息编辑失败")
	}
}

// FormatOptions 展示格式选择键盘
func (n *chatNotifier) FormatOptions(req *pipeline.Request, info *extractor.MediaInfo) {
	text := "🎬 " + utils.TruncateText(info.Title, 100)
	if info.Uploader != "" {
		text += "\n👤 " + info.Uploader
	}
	if info.Duration > 0 {
		text += "\n⏱ " + utils.FormatDuration(info.Duration)
	}
	text += "\n\n请选择下载格式👇"

	n.edit(req, text, keyboards.FormatKeyboard(req.ID, info.Formats))
}

// QueuePosition 排队位置提示
func (n *chatNotifier) QueuePosition(req *pipeline.Request, pos int) {
	text := fmt.Sprintf("⏳ 排队中，当前位置: %d", pos)
	n.edit(req, text, keyboards.CancelKeyboard(req.ID))
}

// Progress 下载进度提示
func (n *chatNotifier) Progress(req *pipeline.Request, done, total int64) {
	var text string
	if total > 0 {
		pct := float64(done) / float64(total) * 100
		text = fmt.Sprintf("⬇️ 下载中\n%s %.1f%%\n%s / %s",
			utils.ProgressBar(pct, 10), pct,
			utils.FormatBytes(done), utils.FormatBytes(total))
	} else {
		text = fmt.Sprintf("⬇️ 下载中\n已下载 %s", utils.FormatBytes(done))
	}
	n.edit(req, text, keyboards.CancelKeyboard(req.ID))
}

// Delivered 完成提示
func (n *chatNotifier) Delivered(req *pipeline.Request) {
	text := "✅ 下载完成"
	if req.Bytes > 0 {
		text += fmt.Sprintf("（%s）", utils.FormatBytes(req.Bytes))
	}
	n.edit(req, text)
}

// Failed 失败提示，文案按失败归类给出
func (n *chatNotifier) Failed(req *pipeline.Request, kind errkind.Kind) {
	n.edit(req, kind.UserMessage())
}
