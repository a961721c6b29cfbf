// Package delivery 成品投递
//
// 按文件大小把成品路由到直传或中转通道：不超过 Bot API 直传上限的
// 走主 Bot 直接发送，更大的先经自建 Bot API 服务上传到中转频道，
// 再由主 Bot 复制给用户。超过平台绝对上限的文件直接拒绝。
package delivery

import (
	"context"
	"fmt"
	"os"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/internal/errkind"
	"github.com/smysle/sakura-dlbot-go/internal/pipeline"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
	"github.com/smysle/sakura-dlbot-go/pkg/utils"
)

// DirectSender 主 Bot 直传能力
type DirectSender interface {
	SendMedia(ctx context.Context, req *pipeline.Request, path string) error
}

// RelayUploader 中转频道能力
type RelayUploader interface {
	// Upload 把文件上传到中转频道，返回频道内的消息定位
	Upload(ctx context.Context, path, caption string) (chatID int64, messageID int, err error)
	// Copy 把中转频道里的消息复制到目标聊天
	Copy(ctx context.Context, toChat, fromChat int64, messageID int) error
}

// Router 投递路由器
type Router struct {
	cfg    *config.DownloadConfig
	relay  *config.RelayConfig
	direct DirectSender
	up     RelayUploader
}

// NewRouter 创建投递路由器，up 可为 nil 表示未配置中转
func NewRouter(cfg *config.DownloadConfig, relay *config.RelayConfig, direct DirectSender, up RelayUploader) *Router {
	return &Router{cfg: cfg, relay: relay, direct: direct, up: up}
}

// Deliver 按大小路由投递成品
func (r *Router) Deliver(ctx context.Context, req *pipeline.Request, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errkind.New(errkind.Internal, fmt.Errorf("成品文件不可读: %w", err))
	}
	size := fi.Size()

	if size > r.cfg.HardLimit() {
		return errkind.Newf(errkind.TooLarge, "文件 %s 超过平台上限 %s",
			utils.FormatBytes(size), utils.FormatBytes(r.cfg.HardLimit()))
	}

	if size <= r.cfg.DirectLimit() {
		logger.Debug().
			Str("request_id", req.ID).
			Str("size", utils.FormatBytes(size)).
			Msg("直传投递")
		return r.direct.SendMedia(ctx, req, path)
	}

	return r.deliverViaRelay(ctx, req, path, size)
}

// deliverViaRelay 大文件走中转频道
func (r *Router) deliverViaRelay(ctx context.Context, req *pipeline.Request, path string, size int64) error {
	if r.up == nil || !r.relay.Enabled {
		// 中转未配置时大文件无路可走：直传必然被平台拒绝
		return errkind.Newf(errkind.TooLarge, "文件 %s 超过直传上限 %s 且未配置中转通道",
			utils.FormatBytes(size), utils.FormatBytes(r.cfg.DirectLimit()))
	}

	logger.Info().
		Str("request_id", req.ID).
		Str("size", utils.FormatBytes(size)).
		Msg("大文件经中转频道投递")

	caption := req.Title
	if caption == "" {
		caption = req.URL
	}
	chatID, messageID, err := r.up.Upload(ctx, path, caption)
	if err != nil {
		return errkind.New(errkind.RelayUnavailable, fmt.Errorf("中转上传失败: %w", err))
	}

	if err := r.up.Copy(ctx, req.ChatID, chatID, messageID); err != nil {
		return errkind.New(errkind.RelayUnavailable, fmt.Errorf("中转复制失败: %w", err))
	}
	return nil
}
