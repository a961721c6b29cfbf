// Package middleware Bot 中间件
package middleware

import (
	"fmt"
	"runtime/debug"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
	"github.com/smysle/sakura-dlbot-go/pkg/utils"
)

// Logger 日志中间件
func Logger() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user != nil {
				logger.Debug().
					Int64("user_id", user.ID).
					Str("username", user.Username).
					Str("text", c.Text()).
					Msg("收到消息")
			}
			return next(c)
		}
	}
}

// Recover 恢复中间件
func Recover() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("处理器 panic")

					c.Send("❌ 处理请求时发生错误，请稍后重试")
				}
			}()
			return next(c)
		}
	}
}

// AdminOnly 管理员权限中间件
func AdminOnly() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			cfg := config.Get()
			if cfg == nil {
				return c.Send("❌ 配置加载失败")
			}

			user := c.Sender()
			if user == nil {
				return c.Send("❌ 无法获取用户信息")
			}

			if !cfg.IsAdmin(user.ID) {
				return c.Send("❌ 您没有权限执行此操作")
			}

			return next(c)
		}
	}
}

// OwnerOnly Owner 权限中间件
func OwnerOnly() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			cfg := config.Get()
			if cfg == nil {
				return c.Send("❌ 配置加载失败")
			}

			user := c.Sender()
			if user == nil {
				return c.Send("❌ 无法获取用户信息")
			}

			if !cfg.IsOwner(user.ID) {
				return c.Send("❌ 此命令仅限 Owner 使用")
			}

			return next(c)
		}
	}
}

// RateLimit 按用户每分钟限频
//
// 超出 rate_per_minute 的消息直接提示并丢弃，管理员不受限。
func RateLimit() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			cfg := config.Get()
			user := c.Sender()
			if cfg == nil || user == nil {
				return next(c)
			}
			if cfg.Download.RatePerMinute <= 0 || cfg.IsAdmin(user.ID) {
				return next(c)
			}

			key := fmt.Sprintf("ratelimit:%d:%s", user.ID, time.Now().Format("15:04"))
			count := 0
			if v, ok := utils.CacheGet(key); ok {
				count = v.(int)
			}
			if count >= cfg.Download.RatePerMinute {
				return c.Send("⏳ 请求太频繁了，请稍后再试")
			}
			utils.CacheSet(key, count+1, time.Minute)

			return next(c)
		}
	}
}
