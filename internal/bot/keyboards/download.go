// Package keyboards 键盘按钮
package keyboards

import (
	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/extractor"
)

// FormatKeyboard 格式选择键盘
//
// 每个视频档位一行，末尾附仅音频与取消。回调数据格式:
//
//	fmt|{requestID}|{formatID}
//	aud|{requestID}
//	cancel_dl|{requestID}
func FormatKeyboard(requestID string, formats []extractor.FormatOption) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	var row tele.Row
	for _, f := range formats {
		if f.AudioOnly {
			continue
		}
		row = append(row, markup.Data(f.Label(), "fmt", requestID, f.ID))
		// 每行两个档位
		if len(row) == 2 {
			rows = append(rows, markup.Row(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, markup.Row(row...))
	}

	rows = append(rows, markup.Row(
		markup.Data("🎵 仅音频", "aud", requestID),
	))
	rows = append(rows, markup.Row(
		markup.Data("❌ 取消", "cancel_dl", requestID),
	))

	markup.Inline(rows...)
	return markup
}

// CancelKeyboard 进行中请求的取消键盘
func CancelKeyboard(requestID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("❌ 取消下载", "cancel_dl", requestID),
	))
	return markup
}
