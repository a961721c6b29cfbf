// Package utils 工具函数测试
package utils

import (
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name       string
		percentage float64
		length     int
		filled     int
	}{
		{"0%", 0, 10, 0},
		{"50%", 50, 10, 5},
		{"100%", 100, 10, 10},
		{"超过 100% 封顶", 150, 10, 10},
		{"负数归零", -5, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := ProgressBar(tt.percentage, tt.length)
			if got := strings.Count(bar, "▰"); got != tt.filled {
				t.Errorf("ProgressBar(%v) 实心格数 = %d, want %d", tt.percentage, got, tt.filled)
			}
			if total := strings.Count(bar, "▰") + strings.Count(bar, "▱"); total != tt.length {
				t.Errorf("进度条总长度 = %d, want %d", total, tt.length)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"未知", 0, "未知"},
		{"分秒", 125, "2:05"},
		{"时分秒", 3725, "1:02:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.seconds); got != tt.expected {
				t.Errorf("FormatDuration(%d) = %s, want %s", tt.seconds, got, tt.expected)
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	if got := TruncateText("hello", 10); got != "hello" {
		t.Errorf("短文本不应被截断: %s", got)
	}
	if got := TruncateText("hello world", 5); got != "hello…" {
		t.Errorf("截断结果 = %s", got)
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(0); got != "未知大小" {
		t.Errorf("FormatBytes(0) = %s", got)
	}
	if got := FormatBytes(1024); got == "" {
		t.Error("FormatBytes(1024) 不应为空")
	}
}
