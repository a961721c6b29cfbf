// Package web Web API 服务
//
// 只读的状态接口：健康检查、全局统计、单个请求的进度查询。
package web

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/internal/database/repository"
	"github.com/smysle/sakura-dlbot-go/internal/pipeline"
	"github.com/smysle/sakura-dlbot-go/internal/statestore"
	pkglogger "github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// Server Web 服务器
type Server struct {
	app       *fiber.App
	cfg       *config.APIConfig
	manager   *pipeline.Manager
	states    *statestore.Store
	startTime time.Time
}

// New 创建 Web 服务器
func New(cfg *config.APIConfig, manager *pipeline.Manager, states *statestore.Store) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// 中间件
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ","),
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	server := &Server{
		app:       app,
		cfg:       cfg,
		manager:   manager,
		states:    states,
		startTime: time.Now(),
	}

	// 注册路由
	server.registerRoutes()

	return server
}

// registerRoutes 注册路由
func (s *Server) registerRoutes() {
	// 健康检查
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/", s.healthCheck)

	// API v1
	v1 := s.app.Group("/api/v1")

	v1.Get("/stats", s.getStats)
	v1.Get("/requests/:id", s.getRequest)
}

// Start 启动服务器
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		pkglogger.Info().Msg("【API服务】未启用，跳过...")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	pkglogger.Info().Str("addr", addr).Msg("【API服务】启动中...")

	return s.app.Listen(addr)
}

// Stop 停止服务器
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

// getStats 全局统计
func (s *Server) getStats(c *fiber.Ctx) error {
	dlRepo := repository.NewDownloadRepository()
	userRepo := repository.NewUserRepository()

	stats, err := dlRepo.GlobalStats()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "统计查询失败")
	}
	users, err := userRepo.Count()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "统计查询失败")
	}

	return c.JSON(fiber.Map{
		"users":      users,
		"active":     s.manager.ActiveCount(),
		"slots_held": s.manager.Slots().Held(),
		"queued":     s.manager.Slots().QueueLen(),
		"downloads":  stats,
	})
}

// getRequest 单个请求的当前状态
//
// 进行中的请求从状态缓存取，已淘汰的回落到流水表。
func (s *Server) getRequest(c *fiber.Ctx) error {
	id := c.Params("id")

	if snap, ok := s.states.Get(id); ok {
		return c.JSON(snap)
	}

	repo := repository.NewDownloadRepository()
	record, err := repo.GetByRequestID(id)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "请求不存在")
	}
	return c.JSON(record)
}
