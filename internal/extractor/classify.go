// Package extractor 上游错误归类
package extractor

import (
	"context"
	"errors"
	"strings"

	"github.com/smysle/sakura-dlbot-go/internal/errkind"
)

// 上游错误文本特征。yt-dlp 的报错是松散文本，这里按片段匹配收敛成固定类型。
var (
	authPatterns = []string{
		"sign in to confirm",
		"login required",
		"requires authentication",
		"this video is only available for registered users",
		"use --cookies",
		"account has been terminated",
	}

	unsupportedPatterns = []string{
		"unsupported url",
		"is not a valid url",
		"video unavailable",
		"private video",
		"this video is not available",
		"not available in your country",
		"geo restricted",
		"no video formats",
		"requested format is not available",
	}

	transientPatterns = []string{
		"timed out",
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"unable to download webpage",
		"http error 429",
		"http error 500",
		"http error 502",
		"http error 503",
		"incomplete read",
		"eof occurred",
	}

	tooLargePatterns = []string{
		"larger than max-filesize",
	}
)

// Classify 把上游错误收敛为固定失败类型
//
// ctx 的取消/超时优先于错误文本匹配。
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	// 已经归类过的错误原样返回
	var de *errkind.Error
	if errors.As(err, &de) {
		return err
	}

	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return errkind.New(errkind.Cancelled, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errkind.New(errkind.FetchTimeout, err)
	}

	text := strings.ToLower(err.Error())

	if matchAny(text, authPatterns) {
		return errkind.New(errkind.AuthRequired, err)
	}
	if matchAny(text, tooLargePatterns) {
		return errkind.New(errkind.TooLarge, err)
	}
	if matchAny(text, unsupportedPatterns) {
		return errkind.New(errkind.UnsupportedURL, err)
	}
	if matchAny(text, transientPatterns) {
		return errkind.New(errkind.NetworkTransient, err)
	}

	return errkind.New(errkind.Internal, err)
}

func matchAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
