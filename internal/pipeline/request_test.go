// Package pipeline 状态流转测试
package pipeline

import (
	"testing"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"排队到解析", StatusQueued, StatusMetadataResolving, true},
		{"解析到选择", StatusMetadataResolving, StatusFormatSelectionPending, true},
		{"选择到下载", StatusFormatSelectionPending, StatusFetching, true},
		{"下载到后处理", StatusFetching, StatusPostProcessing, true},
		{"下载直接到收尾（跳过后处理）", StatusFetching, StatusFinalizing, true},
		{"收尾到送达", StatusFinalizing, StatusDelivered, true},
		{"禁止回退", StatusFetching, StatusMetadataResolving, false},
		{"禁止原地踏步", StatusFetching, StatusFetching, false},
		{"任意非终态可失败", StatusQueued, StatusFailed, true},
		{"下载中可失败", StatusFetching, StatusFailed, true},
		{"送达后不可再失败", StatusDelivered, StatusFailed, false},
		{"失败后不可复活", StatusFailed, StatusFetching, false},
		{"送达后不可流转", StatusDelivered, StatusFinalizing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if !StatusDelivered.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("Delivered/Failed 应该是终态")
	}
	if StatusQueued.IsTerminal() || StatusFetching.IsTerminal() {
		t.Error("Queued/Fetching 不应该是终态")
	}
}
