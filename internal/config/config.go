// Package config 配置管理模块
package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Config 全局配置结构
type Config struct {
	BotName  string  `json:"bot_name"`
	BotToken string  `json:"bot_token"`
	Owner    int64   `json:"owner"`
	Admins   []int64 `json:"admins"`
	BotPhoto string  `json:"bot_photo"`

	Download  DownloadConfig  `json:"download"`
	Relay     RelayConfig     `json:"relay"`
	Database  DatabaseConfig  `json:"database"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Proxy     ProxyConfig     `json:"proxy"`
	API       APIConfig       `json:"api"`
}

// DownloadConfig 下载管线配置
type DownloadConfig struct {
	GlobalSlots      int    `json:"global_slots"`       // 全局并发下载数
	PerUserSlots     int    `json:"per_user_slots"`     // 每用户并发下载数
	SelectionTimeout int    `json:"selection_timeout"`  // 等待用户选择格式的秒数
	FetchTimeout     int    `json:"fetch_timeout"`      // 单次下载超时秒数
	QueueTimeout     int    `json:"queue_timeout"`      // 排队等待槽位的秒数
	RetryBound       int    `json:"retry_bound"`        // 瞬时网络错误重试上限
	DirectLimitMB    int64  `json:"direct_limit_mb"`    // Bot API 直传上限
	HardLimitMB      int64  `json:"hard_limit_mb"`      // 平台绝对上限
	TempPath         string `json:"temp_path"`          // 临时下载目录
	ProgressInterval int    `json:"progress_interval"`  // 进度刷新间隔秒数
	EmbedThumbnail   bool   `json:"embed_thumbnail"`    // 视频是否嵌入封面
	StateTTLMinutes  int    `json:"state_ttl_minutes"`  // 请求状态缓存 TTL
	RatePerMinute    int    `json:"rate_per_minute"`    // 每用户每分钟提交上限
}

// RelayConfig 大文件中转配置
type RelayConfig struct {
	Enabled   bool   `json:"enabled"`
	APIServer string `json:"api_server"` // 自建 Bot API Server 地址
	BotToken  string `json:"bot_token"`  // 中转 bot token（走自建 server，可传大文件）
	ChannelID int64  `json:"channel_id"` // 中转存储频道
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	TempSweep    bool `json:"temp_sweep"`     // 清理过期临时文件
	DailySummary bool `json:"daily_summary"`  // 每日下载统计
	SweepAgeHour int  `json:"sweep_age_hour"` // 临时文件保留小时数
}

// ProxyConfig 代理配置
type ProxyConfig struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// APIConfig Web API 配置
type APIConfig struct {
	Enabled      bool     `json:"enabled"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	AllowOrigins []string `json:"allow_origins"`
}

var (
	cfg     *Config
	cfgLock sync.RWMutex
)

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	// 设置默认值
	config.setDefaults()

	cfgLock.Lock()
	cfg = &config
	cfgLock.Unlock()

	return &config, nil
}

// Get 获取全局配置（线程安全）
func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Download.GlobalSlots == 0 {
		c.Download.GlobalSlots = 5
	}
	if c.Download.PerUserSlots == 0 {
		c.Download.PerUserSlots = 2
	}
	if c.Download.SelectionTimeout == 0 {
		c.Download.SelectionTimeout = 120
	}
	if c.Download.FetchTimeout == 0 {
		c.Download.FetchTimeout = 300
	}
	if c.Download.QueueTimeout == 0 {
		c.Download.QueueTimeout = 600
	}
	if c.Download.RetryBound == 0 {
		c.Download.RetryBound = 3
	}
	if c.Download.DirectLimitMB == 0 {
		c.Download.DirectLimitMB = 50
	}
	if c.Download.HardLimitMB == 0 {
		c.Download.HardLimitMB = 2000
	}
	if c.Download.TempPath == "" {
		c.Download.TempPath = "./downloads"
	}
	if c.Download.ProgressInterval == 0 {
		c.Download.ProgressInterval = 3
	}
	if c.Download.StateTTLMinutes == 0 {
		c.Download.StateTTLMinutes = 60
	}
	if c.Download.RatePerMinute == 0 {
		c.Download.RatePerMinute = 10
	}
	if c.Scheduler.SweepAgeHour == 0 {
		c.Scheduler.SweepAgeHour = 6
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.API.Port == 0 {
		c.API.Port = 8838
	}
	if len(c.API.AllowOrigins) == 0 {
		c.API.AllowOrigins = []string{"*"}
	}
}

// SelectionWait 选择等待超时
func (c *DownloadConfig) SelectionWait() time.Duration {
	return time.Duration(c.SelectionTimeout) * time.Second
}

// FetchWait 下载超时
func (c *DownloadConfig) FetchWait() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// QueueWait 排队等待超时
func (c *DownloadConfig) QueueWait() time.Duration {
	return time.Duration(c.QueueTimeout) * time.Second
}

// DirectLimit 直传上限（字节）
func (c *DownloadConfig) DirectLimit() int64 {
	return c.DirectLimitMB * 1024 * 1024
}

// HardLimit 平台绝对上限（字节）
func (c *DownloadConfig) HardLimit() int64 {
	return c.HardLimitMB * 1024 * 1024
}

// StateTTL 请求状态缓存 TTL
func (c *DownloadConfig) StateTTL() time.Duration {
	return time.Duration(c.StateTTLMinutes) * time.Minute
}

// IsAdmin 判断是否是管理员
func (c *Config) IsAdmin(userID int64) bool {
	if userID == c.Owner {
		return true
	}
	for _, admin := range c.Admins {
		if admin == userID {
			return true
		}
	}
	return false
}

// IsOwner 判断是否是 Owner
func (c *Config) IsOwner(userID int64) bool {
	return userID == c.Owner
}

// configPath 存储配置文件路径
var configPath string

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configPath
}

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configPath = path
}

// Reload 重新加载配置文件
func Reload() (*Config, error) {
	if configPath == "" {
		return nil, nil
	}
	return Load(configPath)
}

// UpdateAndSave 更新配置并保存
func UpdateAndSave(updateFn func(*Config)) error {
	cfgLock.Lock()
	defer cfgLock.Unlock()

	if cfg == nil {
		return nil
	}

	// 执行更新函数
	updateFn(cfg)

	// 保存到文件
	if configPath != "" {
		return cfg.Save(configPath)
	}

	return nil
}
