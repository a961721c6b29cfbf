// Package utils 工具函数
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes 格式化字节数
func FormatBytes(n int64) string {
	if n <= 0 {
		return "未知大小"
	}
	return humanize.IBytes(uint64(n))
}

// ProgressBar 文本进度条
func ProgressBar(percentage float64, length int) string {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	filled := int(float64(length) * percentage / 100)
	return strings.Repeat("▰", filled) + strings.Repeat("▱", length-filled)
}

// FormatDuration 格式化时长显示（秒）
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "未知"
	}
	d := time.Duration(seconds) * time.Second

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// TruncateText 截断过长文本
func TruncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
