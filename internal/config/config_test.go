// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// createValidConfig 构造通过验证的基准配置
func createValidConfig() *Config {
	cfg := &Config{}
	cfg.Feed.URL = "wss://ws.kite.trade/"
	cfg.Instruments = []InstrumentConfig{
		{Token: 408065, Mode: "full"},
		{Token: 738561},
	}
	cfg.setDefaults()
	return cfg
}

// TestConfigValidation_ReconnectParams 测试重连参数验证
// 属性: 初始延迟必须为正数，最大延迟不能小于初始延迟
func TestConfigValidation_ReconnectParams(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// 属性: initial_delay_ms <= 0 应验证失败
	properties.Property("初始延迟非正数应验证失败", prop.ForAll(
		func(delay int) bool {
			cfg := createValidConfig()
			cfg.Feed.Reconnect.InitialDelayMs = delay
			return cfg.Validate() != nil
		},
		gen.IntRange(-10000, 0),
	))

	// 属性: max_delay_ms < initial_delay_ms 应验证失败
	properties.Property("最大延迟小于初始延迟应验证失败", prop.ForAll(
		func(initial int, diff int) bool {
			cfg := createValidConfig()
			cfg.Feed.Reconnect.InitialDelayMs = initial
			cfg.Feed.Reconnect.MaxDelayMs = initial - diff
			return cfg.Validate() != nil
		},
		gen.IntRange(1000, 10000),
		gen.IntRange(1, 999),
	))

	// 属性: 合法的重连参数应通过验证
	properties.Property("合法重连参数应通过验证", prop.ForAll(
		func(initial int, extra int) bool {
			cfg := createValidConfig()
			cfg.Feed.Reconnect.InitialDelayMs = initial
			cfg.Feed.Reconnect.MaxDelayMs = initial + extra
			return cfg.Validate() == nil
		},
		gen.IntRange(1, 10000),
		gen.IntRange(0, 60000),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_Feed 测试行情连接配置验证
func TestConfigValidation_Feed(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "合法配置",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name:    "缺少 URL",
			mutate:  func(cfg *Config) { cfg.Feed.URL = "" },
			wantErr: true,
		},
		{
			name:    "非 websocket 地址",
			mutate:  func(cfg *Config) { cfg.Feed.URL = "https://ws.kite.trade/" },
			wantErr: true,
		},
		{
			name:    "token 为 0",
			mutate:  func(cfg *Config) { cfg.Instruments[0].Token = 0 },
			wantErr: true,
		},
		{
			name:    "非法订阅模式",
			mutate:  func(cfg *Config) { cfg.Instruments[0].Mode = "depth" },
			wantErr: true,
		},
		{
			name:    "空订阅列表合法（运行时再订阅）",
			mutate:  func(cfg *Config) { cfg.Instruments = nil },
			wantErr: false,
		},
		{
			name:    "非法日志级别",
			mutate:  func(cfg *Config) { cfg.App.LogLevel = "verbose" },
			wantErr: true,
		},
		{
			name:    "负超时",
			mutate:  func(cfg *Config) { cfg.Feed.ConnectTimeoutMs = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoad_Defaults 测试配置加载与默认值填充
func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
feed:
  url: wss://ws.kite.trade/
instruments:
  - token: 408065
    mode: full
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.App.Name != "kite-tick-watcher" {
		t.Errorf("默认 app.name = %s", cfg.App.Name)
	}
	if cfg.App.LogLevel != "info" {
		t.Errorf("默认 log_level = %s", cfg.App.LogLevel)
	}
	if cfg.Feed.ConnectTimeoutMs != 5000 {
		t.Errorf("默认 connect_timeout_ms = %d, want 5000", cfg.Feed.ConnectTimeoutMs)
	}
	if cfg.Feed.PingIntervalMs != 3000 {
		t.Errorf("默认 ping_interval_ms = %d, want 3000", cfg.Feed.PingIntervalMs)
	}
	if cfg.Feed.Reconnect.Enabled {
		t.Error("自动重连默认应关闭")
	}
	if cfg.Feed.Reconnect.InitialDelayMs != 2000 {
		t.Errorf("默认 initial_delay_ms = %d, want 2000", cfg.Feed.Reconnect.InitialDelayMs)
	}
	if cfg.Feed.Reconnect.MaxDelayMs != 60000 {
		t.Errorf("默认 max_delay_ms = %d, want 60000", cfg.Feed.Reconnect.MaxDelayMs)
	}
	if cfg.Feed.Reconnect.MaxTries != 30 {
		t.Errorf("默认 max_tries = %d, want 30", cfg.Feed.Reconnect.MaxTries)
	}
	if cfg.Feed.APIKeyEnv != "KITE_API_KEY" {
		t.Errorf("默认 api_key_env = %s", cfg.Feed.APIKeyEnv)
	}
}

// TestLoad_InvalidFile 测试非法配置文件
func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("文件不存在", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
			t.Fatal("期望返回错误")
		}
	})

	t.Run("非法 YAML", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("feed: [unclosed"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatal("期望返回错误")
		}
	})
}

// TestResolveCredentials 测试凭证环境变量解析
func TestResolveCredentials(t *testing.T) {
	cfg := createValidConfig()
	cfg.Feed.APIKeyEnv = "TEST_WATCHER_API_KEY"
	cfg.Feed.AccessTokenEnv = "TEST_WATCHER_ACCESS_TOKEN"

	t.Run("缺少凭证", func(t *testing.T) {
		os.Unsetenv("TEST_WATCHER_API_KEY")
		os.Unsetenv("TEST_WATCHER_ACCESS_TOKEN")
		err := cfg.ResolveCredentials()
		if err == nil {
			t.Fatal("期望返回错误")
		}
		if !strings.Contains(err.Error(), "TEST_WATCHER_API_KEY") {
			t.Errorf("错误信息应包含缺失的环境变量名: %v", err)
		}
	})

	t.Run("凭证齐全", func(t *testing.T) {
		t.Setenv("TEST_WATCHER_API_KEY", "key")
		t.Setenv("TEST_WATCHER_ACCESS_TOKEN", "token")
		if err := cfg.ResolveCredentials(); err != nil {
			t.Fatalf("ResolveCredentials() error = %v", err)
		}
		if cfg.Feed.APIKey != "key" || cfg.Feed.AccessToken != "token" {
			t.Errorf("凭证注入失败: %q %q", cfg.Feed.APIKey, cfg.Feed.AccessToken)
		}
	})
}
