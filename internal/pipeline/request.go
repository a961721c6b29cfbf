// Package pipeline 下载请求生命周期
package pipeline

import (
	"time"

	"github.com/smysle/sakura-dlbot-go/internal/errkind"
)

// Status 请求状态
//
// 只允许向前流转；Failed 可从任意非终态进入。
type Status string

const (
	StatusQueued                 Status = "queued"
	StatusMetadataResolving      Status = "metadata_resolving"
	StatusFormatSelectionPending Status = "format_selection_pending"
	StatusFetching               Status = "fetching"
	StatusPostProcessing         Status = "post_processing"
	StatusFinalizing             Status = "finalizing"
	StatusDelivered              Status = "delivered"
	StatusFailed                 Status = "failed"
)

// statusOrder 状态先后次序，用于禁止回退
var statusOrder = map[Status]int{
	StatusQueued:                 0,
	StatusMetadataResolving:      1,
	StatusFormatSelectionPending: 2,
	StatusFetching:               3,
	StatusPostProcessing:         4,
	StatusFinalizing:             5,
	StatusDelivered:              6,
	StatusFailed:                 6,
}

// IsTerminal 是否终态
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// CanTransitionTo 是否允许流转到 next
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusOrder[next] > statusOrder[s]
}

// Request 一个下载请求
//
// 生命周期内由管线独占写入；外部只通过状态缓存读投影。
type Request struct {
	ID        string // uuid
	UserID    int64
	ChatID    int64
	MessageID int    // 进度消息，供编辑
	URL       string

	FormatID  string
	AudioOnly bool
	Title     string
	Thumbnail string
	Duration  int64

	Status    Status
	FailKind  errkind.Kind
	Bytes     int64 // 最终输出大小
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRequest 创建请求
func NewRequest(id string, userID, chatID int64, url string) *Request {
	now := time.Now()
	return &Request{
		ID:        id,
		UserID:    userID,
		ChatID:    chatID,
		URL:       url,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
