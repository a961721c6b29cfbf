// Package handlers 回调处理器
package handlers

import (
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// OnCallback 回调查询处理器
func OnCallback(c tele.Context) error {
	data := c.Callback().Data

	// telebot v3 的 Data() 生成的回调格式是 "\f{unique}|{data}"
	// 需要去掉 \f 前缀
	if len(data) > 0 && data[0] == '\f' {
		data = data[1:]
	}

	parts := strings.Split(data, "|")
	action := parts[0]

	logger.Debug().Str("action", action).Msg("收到回调")

	switch action {
	case "fmt":
		return handleFormatSelect(c, parts[1:])
	case "aud":
		return handleAudioSelect(c, parts[1:])
	case "cancel_dl":
		return handleCancelDownload(c, parts[1:])
	default:
		return c.Respond(&tele.CallbackResponse{Text: "未知操作"})
	}
}

// handleFormatSelect 用户选定了视频档位
func handleFormatSelect(c tele.Context, args []string) error {
	if len(args) < 2 {
		return c.Respond(&tele.CallbackResponse{Text: "回调数据不完整"})
	}
	requestID, formatID := args[0], args[1]

	if err := manager.Select(requestID, formatID, false); err != nil {
		logger.Debug().Err(err).Str("request_id", requestID).Msg("格式选择被拒绝")
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ 该请求已结束或已选择过"})
	}

	c.Edit("📥 已选择清晰度，准备下载…")
	return c.Respond(&tele.CallbackResponse{Text: "✅ 已选择"})
}

// handleAudioSelect 用户选了仅音频
func handleAudioSelect(c tele.Context, args []string) error {
	if len(args) < 1 {
		return c.Respond(&tele.CallbackResponse{Text: "回调数据不完整"})
	}
	requestID := args[0]

	if err := manager.Select(requestID, "", true); err != nil {
		logger.Debug().Err(err).Str("request_id", requestID).Msg("音频选择被拒绝")
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ 该请求已结束或已选择过"})
	}

	c.Edit("🎵 已选择仅音频，准备下载…")
	return c.Respond(&tele.CallbackResponse{Text: "✅ 已选择"})
}

// handleCancelDownload 用户取消请求
func handleCancelDownload(c tele.Context, args []string) error {
	if len(args) < 1 {
		return c.Respond(&tele.CallbackResponse{Text: "回调数据不完整"})
	}
	requestID := args[0]

	if err := manager.Cancel(requestID); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ 该请求已结束"})
	}
	return c.Respond(&tele.CallbackResponse{Text: "🚫 已取消"})
}
