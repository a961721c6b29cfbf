// Package errkind 下载失败类型
//
// 上游（yt-dlp、网络、Telegram）的错误在适配层统一收敛为固定的失败类型，
// 管线和用户提示只依赖这里的枚举，不依赖上游错误文本。
package errkind

import (
	"errors"
	"fmt"
)

// Kind 失败类型
type Kind string

const (
	UnsupportedURL   Kind = "unsupported_url"   // 链接无效或站点不支持
	AuthRequired     Kind = "auth_required"     // 平台要求登录验证
	NetworkTransient Kind = "network_transient" // 瞬时网络错误（内部重试）
	NetworkExhausted Kind = "network_exhausted" // 重试耗尽
	SelectionTimeout Kind = "selection_timeout" // 等待格式选择超时
	FetchTimeout     Kind = "fetch_timeout"     // 下载超时
	TooLarge         Kind = "too_large"         // 超过平台绝对上限
	RelayUnavailable Kind = "relay_unavailable" // 中转上传失败
	Cancelled        Kind = "cancelled"         // 用户取消
	Internal         Kind = "internal"          // 其他内部错误
)

// Error 带类型的下载错误
type Error struct {
	Kind Kind
	Err  error // 原始错误，只进日志，不外露给用户
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建带类型的错误
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf 创建带类型的错误（格式化消息）
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf 提取错误类型，非本包错误归为 internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Internal
}

// IsTransient 是否可以本地重试
func IsTransient(err error) bool {
	return KindOf(err) == NetworkTransient
}

// UserMessage 用户可见的失败提示
func (k Kind) UserMessage() string {
	switch k {
	case UnsupportedURL:
		return "❌ 无法解析该链接，请确认是有效的视频地址"
	case AuthRequired:
		return "🔐 平台要求登录验证，暂时无法下载，请联系管理员更新凭据"
	case NetworkExhausted:
		return "🌐 网络持续异常，多次重试后仍然失败，请稍后再试"
	case SelectionTimeout:
		return "⏳ 等待选择超时，请重新发送链接"
	case FetchTimeout:
		return "⏳ 下载超时，请稍后再试或选择更低画质"
	case TooLarge:
		return "📦 文件超过 2GB 上限，请选择更低画质"
	case RelayUnavailable:
		return "📦 文件超过直传上限且中转通道不可用，请选择更低画质"
	case Cancelled:
		return "🚫 任务已取消"
	default:
		return "❌ 处理请求时发生错误，请稍后重试"
	}
}
