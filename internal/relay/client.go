// Package relay 大文件中转
//
// 主 Bot 的直传有 50MB 上限。更大的文件通过自建 Bot API 服务上传到
// 一个私有中转频道，再由主 Bot 把频道消息复制给用户。自建服务放宽了
// 上传限制，复制操作对消息大小没有限制。
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// Client 中转上传客户端
type Client struct {
	baseURL   string // 自建 Bot API 服务地址
	token     string // 中转 Bot 的令牌
	channelID int64  // 中转频道
	http      *resty.Client
	primary   *tele.Bot // 主 Bot，执行复制
}

// NewClient 创建中转客户端
func NewClient(cfg *config.RelayConfig, primary *tele.Bot) *Client {
	client := resty.New()
	// 大文件上传给足耐心
	client.SetTimeout(30 * time.Minute)
	client.SetHeader("User-Agent", "SakuraDLBot/1.0 Go")

	return &Client{
		baseURL:   strings.TrimSuffix(cfg.APIServer, "/"),
		token:     cfg.BotToken,
		channelID: cfg.ChannelID,
		http:      client,
		primary:   primary,
	}
}

// apiResponse Bot API 通用响应
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// sentMessage sendDocument 结果里关心的字段
type sentMessage struct {
	MessageID int `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// Upload 把文件上传到中转频道
func (c *Client) Upload(ctx context.Context, path, caption string) (int64, int, error) {
	url := fmt.Sprintf("%s/bot%s/sendDocument", c.baseURL, c.token)

	logger.Info().
		Str("file", filepath.Base(path)).
		Int64("channel", c.channelID).
		Msg("上传文件到中转频道")

	resp, err := c.http.R().
		SetContext(ctx).
		SetFile("document", path).
		SetFormData(map[string]string{
			"chat_id": strconv.FormatInt(c.channelID, 10),
			"caption": caption,
		}).
		Post(url)
	if err != nil {
		return 0, 0, fmt.Errorf("中转上传请求失败: %w", err)
	}

	var body apiResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, 0, fmt.Errorf("中转响应解析失败 (HTTP %d): %w", resp.StatusCode(), err)
	}
	if !body.OK {
		return 0, 0, fmt.Errorf("中转上传被拒绝: %s", body.Description)
	}

	var msg sentMessage
	if err := json.Unmarshal(body.Result, &msg); err != nil {
		return 0, 0, fmt.Errorf("中转消息解析失败: %w", err)
	}

	logger.Debug().
		Int("message_id", msg.MessageID).
		Int64("chat_id", msg.Chat.ID).
		Msg("中转上传完成")
	return msg.Chat.ID, msg.MessageID, nil
}

// Copy 用主 Bot 把中转频道的消息复制到目标聊天
func (c *Client) Copy(ctx context.Context, toChat, fromChat int64, messageID int) error {
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    fromChat,
	}
	_, err := c.primary.Copy(&tele.Chat{ID: toChat}, stored)
	if err != nil {
		return fmt.Errorf("复制中转消息失败: %w", err)
	}
	return nil
}
