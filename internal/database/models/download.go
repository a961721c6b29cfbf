// Package models 数据模型 - 下载记录
package models

import (
	"time"
)

// DownloadStatus 下载终态
type DownloadStatus string

const (
	DownloadDelivered DownloadStatus = "delivered" // 已送达
	DownloadFailed    DownloadStatus = "failed"    // 失败
)

// Download 下载流水表
//
// 每个请求只写一条终态记录，以 request_id 幂等。
type Download struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RequestID   string         `gorm:"column:request_id;size:36;uniqueIndex" json:"request_id"`
	TG          int64          `gorm:"column:tg;index" json:"tg"`
	URL         string         `gorm:"column:url;type:text" json:"url"`
	Title       *string        `gorm:"column:title;size:500" json:"title,omitempty"`
	FormatID    *string        `gorm:"column:format_id;size:64" json:"format_id,omitempty"`
	AudioOnly   bool           `gorm:"column:audio_only;default:false" json:"audio_only"`
	Bytes       int64          `gorm:"column:bytes;default:0" json:"bytes"`
	Status      DownloadStatus `gorm:"column:status;size:16" json:"status"`
	ErrorKind   *string        `gorm:"column:error_kind;size:32" json:"error_kind,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// TableName 表名
func (Download) TableName() string {
	return "downloads"
}

// IsDelivered 是否成功送达
func (d *Download) IsDelivered() bool {
	return d.Status == DownloadDelivered
}

// Duration 从创建到完成耗时
func (d *Download) Duration() time.Duration {
	if d.CompletedAt == nil {
		return 0
	}
	return d.CompletedAt.Sub(d.CreatedAt)
}
