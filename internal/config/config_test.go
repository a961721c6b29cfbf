// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_IsAdmin(t *testing.T) {
	cfg := &Config{
		Owner:  12345,
		Admins: []int64{11111, 22222},
	}

	tests := []struct {
		name     string
		userID   int64
		expected bool
	}{
		{"Owner 是管理员", 12345, true},
		{"Admin 是管理员", 11111, true},
		{"Admin2 是管理员", 22222, true},
		{"普通用户不是管理员", 99999, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsAdmin(tt.userID); got != tt.expected {
				t.Errorf("IsAdmin(%d) = %v, want %v", tt.userID, got, tt.expected)
			}
		})
	}
}

func TestConfig_IsOwner(t *testing.T) {
	cfg := &Config{
		Owner: 12345,
	}

	if !cfg.IsOwner(12345) {
		t.Error("IsOwner(12345) 应该返回 true")
	}

	if cfg.IsOwner(99999) {
		t.Error("IsOwner(99999) 应该返回 false")
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()

	if cfg.Download.GlobalSlots != 5 {
		t.Errorf("默认全局槽位 = %d, want 5", cfg.Download.GlobalSlots)
	}
	if cfg.Download.PerUserSlots != 2 {
		t.Errorf("默认每用户槽位 = %d, want 2", cfg.Download.PerUserSlots)
	}
	if cfg.Download.DirectLimitMB != 50 {
		t.Errorf("默认直传上限 = %d MB, want 50", cfg.Download.DirectLimitMB)
	}
	if cfg.Download.HardLimitMB != 2000 {
		t.Errorf("默认绝对上限 = %d MB, want 2000", cfg.Download.HardLimitMB)
	}
	if cfg.Download.RetryBound != 3 {
		t.Errorf("默认重试上限 = %d, want 3", cfg.Download.RetryBound)
	}
	if cfg.Download.SelectionWait() != 120*time.Second {
		t.Errorf("默认选择超时 = %v, want 120s", cfg.Download.SelectionWait())
	}
	if cfg.Download.FetchWait() != 300*time.Second {
		t.Errorf("默认下载超时 = %v, want 300s", cfg.Download.FetchWait())
	}
}

func TestConfig_Limits(t *testing.T) {
	d := &DownloadConfig{DirectLimitMB: 50, HardLimitMB: 2000}

	if d.DirectLimit() != 50*1024*1024 {
		t.Errorf("DirectLimit() = %d", d.DirectLimit())
	}
	if d.HardLimit() != 2000*1024*1024 {
		t.Errorf("HardLimit() = %d", d.HardLimit())
	}
}

func TestConfig_LoadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"bot_name": "Sakura DLBot",
		"bot_token": "test-token",
		"owner": 12345,
		"download": {"global_slots": 3},
		"relay": {"enabled": true, "channel_id": -100123}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() 失败: %v", err)
	}

	if cfg.BotName != "Sakura DLBot" {
		t.Errorf("BotName = %s", cfg.BotName)
	}
	if cfg.Download.GlobalSlots != 3 {
		t.Errorf("显式配置被默认值覆盖: GlobalSlots = %d", cfg.Download.GlobalSlots)
	}
	if cfg.Download.PerUserSlots != 2 {
		t.Errorf("缺省字段未填默认值: PerUserSlots = %d", cfg.Download.PerUserSlots)
	}
	if !cfg.Relay.Enabled || cfg.Relay.ChannelID != -100123 {
		t.Errorf("中转配置读取错误: %+v", cfg.Relay)
	}

	// 往返保存
	out := filepath.Join(t.TempDir(), "saved.json")
	if err := cfg.Save(out); err != nil {
		t.Fatalf("Save() 失败: %v", err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatalf("重新 Load() 失败: %v", err)
	}
	if again.Download.GlobalSlots != cfg.Download.GlobalSlots {
		t.Error("保存后重载配置不一致")
	}
}
