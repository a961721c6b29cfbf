// Package extractor 下载后处理
//
// 音频提取和封面嵌入走本机 ffmpeg。后处理失败不致命，
// 调用方会回退发送原始文件。
package extractor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// PostOptions 后处理参数
type PostOptions struct {
	AudioOnly    bool   // 提取为 m4a 音频
	ThumbnailURL string // 封面图地址，空则跳过嵌入
}

// Processor ffmpeg 后处理器
type Processor struct {
	http *resty.Client
}

// NewProcessor 创建后处理器
func NewProcessor() *Processor {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(2)

	return &Processor{http: client}
}

// Process 执行后处理，返回新文件路径
//
// 任一步骤失败时返回错误和原路径，由调用方决定回退。
func (p *Processor) Process(ctx context.Context, path string, opts PostOptions) (string, error) {
	if opts.AudioOnly {
		out, err := p.extractAudio(ctx, path)
		if err != nil {
			return path, err
		}
		path = out
	}

	if opts.ThumbnailURL != "" {
		out, err := p.embedThumbnail(ctx, path, opts.ThumbnailURL)
		if err != nil {
			// 封面嵌入失败不影响已有输出
			logger.Warn().Err(err).Str("path", path).Msg("封面嵌入失败，保留原文件")
			return path, nil
		}
		path = out
	}

	return path, nil
}

// extractAudio 提取音轨为 m4a
func (p *Processor) extractAudio(ctx context.Context, src string) (string, error) {
	dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".m4a"
	if dst == src {
		dst = src + ".m4a"
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", src,
		"-vn",
		"-acodec", "aac",
		"-b:a", "192k",
		dst,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("ffmpeg 提取音频失败: %w: %s", err, tail(string(out), 200))
	}

	os.Remove(src)
	return dst, nil
}

// embedThumbnail 下载封面并嵌入
func (p *Processor) embedThumbnail(ctx context.Context, src, thumbURL string) (string, error) {
	thumbPath := filepath.Join(filepath.Dir(src), "thumb.jpg")
	resp, err := p.http.R().
		SetContext(ctx).
		SetOutput(thumbPath).
		Get(thumbURL)
	if err != nil {
		return "", fmt.Errorf("下载封面失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("下载封面失败: HTTP %d", resp.StatusCode())
	}
	defer os.Remove(thumbPath)

	ext := filepath.Ext(src)
	dst := strings.TrimSuffix(src, ext) + ".thumb" + ext

	var cmd *exec.Cmd
	if ext == ".m4a" || ext == ".mp3" {
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-y",
			"-i", src,
			"-i", thumbPath,
			"-map", "0", "-map", "1",
			"-c", "copy",
			"-disposition:v:0", "attached_pic",
			dst,
		)
	} else {
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-y",
			"-i", src,
			"-i", thumbPath,
			"-map", "0", "-map", "1",
			"-c", "copy",
			"-disposition:v:1", "attached_pic",
			dst,
		)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("ffmpeg 嵌入封面失败: %w: %s", err, tail(string(out), 200))
	}

	os.Remove(src)
	return dst, nil
}

// tail 取文本末尾 n 个字符
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
