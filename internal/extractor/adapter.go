// Package extractor 媒体解析适配层
//
// 封装 yt-dlp：probe 拿可选格式，fetch 执行下载并回报进度。
// 上游错误在本层统一收敛为 errkind 类型，不向外泄露原始错误文本。
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"

	"github.com/smysle/sakura-dlbot-go/internal/errkind"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// ProgressSink 下载进度回调
//
// done 单调不减；适配层保证 Fetch 返回之后不再回调。
type ProgressSink func(done, total int64)

// FormatOption 一个可选的下载格式
type FormatOption struct {
	ID        string `json:"id"`
	Ext       string `json:"ext"`
	Height    int    `json:"height"`
	AudioOnly bool   `json:"audio_only"`
	Size      int64  `json:"size"` // 估算值，0 表示未知
}

// Label 选择按钮上的展示文本
func (f FormatOption) Label() string {
	var name string
	if f.AudioOnly {
		name = "🎵 音频"
	} else {
		name = fmt.Sprintf("🎬 %dp", f.Height)
	}
	if f.Size > 0 {
		return fmt.Sprintf("%s · %s · ~%s", name, f.Ext, humanize.IBytes(uint64(f.Size)))
	}
	return fmt.Sprintf("%s · %s", name, f.Ext)
}

// MediaInfo probe 结果
type MediaInfo struct {
	Title     string         `json:"title"`
	Uploader  string         `json:"uploader"`
	Platform  string         `json:"platform"`
	Thumbnail string         `json:"thumbnail"`
	Duration  int64          `json:"duration"` // 秒
	Formats   []FormatOption `json:"formats"`
}

// FetchSpec 一次下载的参数
type FetchSpec struct {
	RequestID string
	URL       string
	FormatID  string
	AudioOnly bool
}

// Adapter yt-dlp 适配器
type Adapter struct {
	tempPath     string
	probeTimeout time.Duration
}

// New 创建适配器
func New(tempPath string) *Adapter {
	return &Adapter{
		tempPath:     tempPath,
		probeTimeout: 60 * time.Second,
	}
}

// probeFormat yt-dlp JSON 中的单个格式
type probeFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Vcodec         string   `json:"vcodec"`
	Acodec         string   `json:"acodec"`
	Height         int      `json:"height"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *int64   `json:"filesize_approx"`
	Tbr            *float64 `json:"tbr"`
	FormatNote     string   `json:"format_note"`
}

// probeInfo yt-dlp dump-single-json 输出
type probeInfo struct {
	Title     string        `json:"title"`
	Uploader  string        `json:"uploader"`
	Extractor string        `json:"extractor"`
	Thumbnail string        `json:"thumbnail"`
	Duration  float64       `json:"duration"`
	Formats   []probeFormat `json:"formats"`
}

// Probe 解析链接，返回可选格式列表
func (a *Adapter) Probe(ctx context.Context, url string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	dl := ytdlp.New().
		DumpSingleJSON().
		SkipDownload().
		NoPlaylist()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, Classify(ctx, err)
	}

	var info probeInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, errkind.Newf(errkind.Internal, "解析 probe 输出失败: %w", err)
	}

	media := &MediaInfo{
		Title:     info.Title,
		Uploader:  info.Uploader,
		Platform:  info.Extractor,
		Thumbnail: info.Thumbnail,
		Duration:  int64(info.Duration),
		Formats:   collectFormats(&info),
	}

	logger.Debug().
		Str("url", url).
		Str("title", media.Title).
		Int("formats", len(media.Formats)).
		Msg("probe 完成")

	return media, nil
}

// collectFormats 整理格式列表：按清晰度去重，估算缺失的文件大小
func collectFormats(info *probeInfo) []FormatOption {
	var out []FormatOption
	seenHeights := make(map[int]bool)
	bestAudio := FormatOption{}

	for _, f := range info.Formats {
		// 跳过故事板/封面等伪格式
		if f.FormatNote == "storyboard" || f.FormatNote == "thumbnail" {
			continue
		}

		size := int64(0)
		if f.Filesize != nil {
			size = *f.Filesize
		} else if f.FilesizeApprox != nil {
			size = *f.FilesizeApprox
		} else if f.Tbr != nil && info.Duration > 0 {
			// 用码率×时长估算
			size = int64(*f.Tbr * 1024 * info.Duration / 8)
		}

		hasVideo := f.Vcodec != "" && f.Vcodec != "none"
		hasAudio := f.Acodec != "" && f.Acodec != "none"

		switch {
		case hasVideo && f.Height > 0:
			if seenHeights[f.Height] {
				continue
			}
			seenHeights[f.Height] = true
			out = append(out, FormatOption{
				ID:     f.FormatID,
				Ext:    f.Ext,
				Height: f.Height,
				Size:   size,
			})
		case !hasVideo && hasAudio:
			// 只保留最大的音频格式
			if size >= bestAudio.Size {
				bestAudio = FormatOption{
					ID:        f.FormatID,
					Ext:       f.Ext,
					AudioOnly: true,
					Size:      size,
				}
			}
		}
	}

	if bestAudio.ID != "" {
		out = append(out, bestAudio)
	}
	return out
}

// Fetch 执行下载，返回本地文件路径
func (a *Adapter) Fetch(ctx context.Context, spec FetchSpec, sink ProgressSink) (string, error) {
	outDir := filepath.Join(a.tempPath, spec.RequestID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", errkind.Newf(errkind.Internal, "创建下载目录失败: %w", err)
	}

	dl := ytdlp.New().
		Format(formatSelector(spec.FormatID, spec.AudioOnly)).
		Output(filepath.Join(outDir, "%(title).100s.%(ext)s")).
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist()

	// 进度回调：保证单调不减，Fetch 返回后不再触发
	var (
		mu      sync.Mutex
		maxDone int64
		closed  bool
	)
	dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		done := int64(update.DownloadedBytes)
		if done < maxDone {
			done = maxDone
		}
		maxDone = done
		sink(done, int64(update.TotalBytes))
	})

	result, err := dl.Run(ctx, spec.URL)

	mu.Lock()
	closed = true
	mu.Unlock()

	if err != nil {
		return "", Classify(ctx, err)
	}

	path := outputPath(result, outDir)
	if path == "" {
		return "", errkind.Newf(errkind.Internal, "下载完成但未找到输出文件: %s", outDir)
	}
	return path, nil
}

// formatSelector 构造 yt-dlp 格式选择串
func formatSelector(formatID string, audioOnly bool) string {
	if audioOnly {
		if formatID != "" && formatID != "bestaudio" {
			return formatID + "/bestaudio/best"
		}
		return "bestaudio/best"
	}
	if formatID != "" && formatID != "best" {
		// 独立视频流要合并最优音频
		return formatID + "+bestaudio/" + formatID + "/best"
	}
	return "bestvideo+bestaudio/best"
}

// outputPath 从结果中取输出文件，拿不到时扫描下载目录兜底
func outputPath(result *ytdlp.Result, outDir string) string {
	if result != nil {
		if info, err := result.GetExtractedInfo(); err == nil && len(info) > 0 {
			if info[0].Filename != nil && *info[0].Filename != "" {
				return *info[0].Filename
			}
		}
	}

	// yt-dlp 合并/改名后 info 里的文件名可能失效，按修改时间找最新文件
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.Size() == 0 {
			continue
		}
		if filepath.Ext(e.Name()) == ".part" || filepath.Ext(e.Name()) == ".ytdl" {
			continue
		}
		if fi.ModTime().After(newestMod) {
			newestMod = fi.ModTime()
			newest = filepath.Join(outDir, e.Name())
		}
	}
	return newest
}

// Cleanup 删除请求的临时目录
func (a *Adapter) Cleanup(requestID string) {
	dir := filepath.Join(a.tempPath, requestID)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("清理临时目录失败")
	}
}
