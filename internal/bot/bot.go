// Package bot Telegram Bot 核心
package bot

import (
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-dlbot-go/internal/bot/handlers"
	"github.com/smysle/sakura-dlbot-go/internal/bot/middleware"
	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/internal/delivery"
	"github.com/smysle/sakura-dlbot-go/internal/extractor"
	"github.com/smysle/sakura-dlbot-go/internal/pipeline"
	"github.com/smysle/sakura-dlbot-go/internal/relay"
	"github.com/smysle/sakura-dlbot-go/internal/statestore"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// Bot Telegram Bot 实例
type Bot struct {
	*tele.Bot
	cfg     *config.Config
	manager *pipeline.Manager
	states  *statestore.Store
}

var instance *Bot

// New 创建新的 Bot 实例并装配下载管线
func New(cfg *config.Config) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			logger.Error().Err(err).Msg("Bot 错误")
		},
	}

	if cfg.Proxy.Scheme != "" {
		// 代理支持需要使用自定义 HTTP 客户端
		// 在容器化部署中通常直接配置环境变量 HTTP_PROXY
		logger.Info().
			Str("scheme", cfg.Proxy.Scheme).
			Str("host", cfg.Proxy.Host).
			Msg("检测到代理配置，请确保已设置 HTTP_PROXY 环境变量")
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	// 装配下载管线
	states := statestore.New(cfg.Download.StateTTL())
	slots := pipeline.NewSlotPool(cfg.Download.GlobalSlots, cfg.Download.PerUserSlots)
	adapter := extractor.New(cfg.Download.TempPath)
	processor := extractor.NewProcessor()

	var uploader delivery.RelayUploader
	if cfg.Relay.Enabled {
		uploader = relay.NewClient(&cfg.Relay, b)
		logger.Info().
			Int64("channel", cfg.Relay.ChannelID).
			Msg("中转通道已启用")
	}
	router := delivery.NewRouter(&cfg.Download, &cfg.Relay, delivery.NewBotSender(b), uploader)

	manager := pipeline.NewManager(
		&cfg.Download,
		slots,
		adapter,
		processor,
		states,
		newDBLedger(),
		router,
		newChatNotifier(b),
	)

	bot := &Bot{
		Bot:     b,
		cfg:     cfg,
		manager: manager,
		states:  states,
	}

	handlers.Init(manager, states)

	// 注册中间件
	bot.registerMiddleware()

	// 注册处理器
	bot.registerHandlers()

	// 设置命令列表
	bot.setCommands()

	instance = bot
	return bot, nil
}

// Get 获取 Bot 单例
func Get() *Bot {
	return instance
}

// Manager 下载管线管理器
func (b *Bot) Manager() *pipeline.Manager {
	return b.manager
}

// States 请求状态缓存
func (b *Bot) States() *statestore.Store {
	return b.states
}

// Run 运行 Bot
func (b *Bot) Run() {
	logger.Info().Str("bot", b.cfg.BotName).Msg("Bot 启动中...")
	b.Start()
}

// Stop 停止 Bot
func (b *Bot) Stop() {
	logger.Info().Msg("Bot 停止中...")
	b.Bot.Stop()
}

// registerMiddleware 注册中间件
func (b *Bot) registerMiddleware() {
	// 日志中间件
	b.Use(middleware.Logger())

	// 恢复中间件
	b.Use(middleware.Recover())
}

// registerHandlers 注册所有处理器
func (b *Bot) registerHandlers() {
	// 用户命令
	b.Handle("/start", handlers.Start)
	b.Handle("/help", handlers.Help)
	b.Handle("/history", handlers.History)
	b.Handle("/stats", handlers.MyStats)
	b.Handle("/cancel", handlers.Cancel)

	// 管理员命令 (需要权限验证)
	adminGroup := b.Group()
	adminGroup.Use(middleware.AdminOnly())

	adminGroup.Handle("/status", handlers.Status)
	adminGroup.Handle("/gstats", handlers.GlobalStats)
	adminGroup.Handle("/top", handlers.TopUsers)

	// Owner 命令
	ownerGroup := b.Group()
	ownerGroup.Use(middleware.OwnerOnly())

	ownerGroup.Handle("/reload", handlers.ReloadConfig)

	// 回调查询
	b.Handle(tele.OnCallback, handlers.OnCallback)

	// 链接消息（带限频）
	b.Handle(tele.OnText, handlers.OnText, middleware.RateLimit())
}

// setCommands 设置命令列表
func (b *Bot) setCommands() {
	userCmds := []tele.Command{
		{Text: "start", Description: "[用户] 开始使用"},
		{Text: "help", Description: "[用户] 使用说明"},
		{Text: "history", Description: "[用户] 最近下载"},
		{Text: "stats", Description: "[用户] 我的统计"},
		{Text: "cancel", Description: "[用户] 取消进行中的下载"},
	}

	adminCmds := append(userCmds, []tele.Command{
		{Text: "status", Description: "运行状态 [管理]"},
		{Text: "gstats", Description: "全局统计 [管理]"},
		{Text: "top", Description: "下载排行 [管理]"},
	}...)

	ownerCmds := append(adminCmds, []tele.Command{
		{Text: "reload", Description: "重载配置 [owner]"},
	}...)

	if err := b.SetCommands(userCmds); err != nil {
		logger.Warn().Err(err).Msg("设置命令列表失败")
	}

	// 管理员与 Owner 在各自私聊里看到更多命令
	for _, admin := range b.cfg.Admins {
		if err := b.SetCommands(adminCmds, tele.CommandScope{
			Type:   tele.CommandScopeChat,
			ChatID: admin,
		}); err != nil {
			logger.Debug().Err(err).Int64("admin", admin).Msg("设置管理员命令失败")
		}
	}
	if b.cfg.Owner != 0 {
		if err := b.SetCommands(ownerCmds, tele.CommandScope{
			Type:   tele.CommandScopeChat,
			ChatID: b.cfg.Owner,
		}); err != nil {
			logger.Debug().Err(err).Msg("设置 Owner 命令失败")
		}
	}
}
