// Package extractor 错误归类测试
package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smysle/sakura-dlbot-go/internal/errkind"
)

func TestClassify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		expected errkind.Kind
	}{
		{
			"登录墙",
			errors.New("ERROR: [youtube] abc: Sign in to confirm you're not a bot"),
			errkind.AuthRequired,
		},
		{
			"cookies 失效",
			errors.New("ERROR: Use --cookies for the authentication"),
			errkind.AuthRequired,
		},
		{
			"无效链接",
			errors.New("ERROR: Unsupported URL: https://example.com/x"),
			errkind.UnsupportedURL,
		},
		{
			"视频已删除",
			errors.New("ERROR: Video unavailable"),
			errkind.UnsupportedURL,
		},
		{
			"地区限制",
			errors.New("ERROR: The uploader has not made this video not available in your country"),
			errkind.UnsupportedURL,
		},
		{
			"网络超时",
			errors.New("ERROR: Unable to download webpage: The read operation timed out"),
			errkind.NetworkTransient,
		},
		{
			"限流",
			errors.New("ERROR: HTTP Error 429: Too Many Requests"),
			errkind.NetworkTransient,
		},
		{
			"超过大小上限",
			errors.New("File is larger than max-filesize"),
			errkind.TooLarge,
		},
		{
			"未知错误归为 internal",
			errors.New("something exploded"),
			errkind.Internal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errkind.KindOf(Classify(ctx, tt.err))
			if got != tt.expected {
				t.Errorf("Classify() kind = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(context.Background(), nil) != nil {
		t.Error("nil 错误应该原样返回 nil")
	}
}

func TestClassify_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := errkind.KindOf(Classify(ctx, errors.New("signal: killed")))
	if got != errkind.Cancelled {
		t.Errorf("取消的 ctx 应归类为 cancelled, got %v", got)
	}
}

func TestClassify_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	got := errkind.KindOf(Classify(ctx, errors.New("signal: killed")))
	if got != errkind.FetchTimeout {
		t.Errorf("超时的 ctx 应归类为 fetch_timeout, got %v", got)
	}
}

func TestClassify_AlreadyClassified(t *testing.T) {
	orig := errkind.New(errkind.TooLarge, errors.New("too big"))
	got := Classify(context.Background(), orig)
	if errkind.KindOf(got) != errkind.TooLarge {
		t.Error("已归类错误应保持原类型")
	}
}
