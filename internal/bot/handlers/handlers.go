// Package handlers Bot 命令处理器
package handlers

import (
	"github.com/smysle/sakura-dlbot-go/internal/pipeline"
	"github.com/smysle/sakura-dlbot-go/internal/statestore"
)

var (
	manager *pipeline.Manager
	states  *statestore.Store
)

// Init 注入处理器依赖，必须在注册处理器前调用
func Init(m *pipeline.Manager, s *statestore.Store) {
	manager = m
	states = s
}
