// Package config 负责加载和验证 YAML 配置文件。
// 提供行情客户端所需的所有配置项，包括连接参数、重连策略、订阅列表与输出设置。
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Feed 行情连接配置
	Feed FeedConfig `yaml:"feed"`
	// Instruments 启动时订阅的合约列表
	Instruments []InstrumentConfig `yaml:"instruments"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// LogFile 日志文件路径，留空则只输出到标准错误
	LogFile string `yaml:"log_file"`
}

// FeedConfig 行情连接配置
type FeedConfig struct {
	// URL WebSocket 连接地址（凭证以查询参数拼接，不写入配置文件）
	URL string `yaml:"url"`
	// APIKeyEnv 提供 API key 的环境变量名
	APIKeyEnv string `yaml:"api_key_env"`
	// AccessTokenEnv 提供 access token 的环境变量名
	AccessTokenEnv string `yaml:"access_token_env"`

	// APIKey 运行时由环境变量注入，不参与序列化
	APIKey string `yaml:"-"`
	// AccessToken 运行时由环境变量注入，不参与序列化
	AccessToken string `yaml:"-"`

	// ConnectTimeoutMs 建连握手超时（毫秒）
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
	// PingIntervalMs 协议层 ping 发送间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// ReadTimeoutMs 读取超时（毫秒），0 表示禁用
	ReadTimeoutMs int `yaml:"read_timeout_ms"`

	// Reconnect 自动重连配置
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig 自动重连配置
// 延迟从 InitialDelayMs 开始逐次翻倍，封顶于 MaxDelayMs；
// 尝试次数超过 MaxTries 后不再自动重连。
type ReconnectConfig struct {
	// Enabled 是否启用自动重连
	Enabled bool `yaml:"enabled"`
	// InitialDelayMs 初始重连延迟（毫秒）
	InitialDelayMs int `yaml:"initial_delay_ms"`
	// MaxDelayMs 最大重连延迟（毫秒）
	MaxDelayMs int `yaml:"max_delay_ms"`
	// MaxTries 最大重连尝试次数
	MaxTries int `yaml:"max_tries"`
}

// InstrumentConfig 启动订阅的合约配置
type InstrumentConfig struct {
	// Token instrument token
	Token uint32 `yaml:"token"`
	// Mode 订阅模式: ltp, quote, full；留空表示 quote
	Mode string `yaml:"mode"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// TicksEnabled 是否输出 tick 文件
	TicksEnabled bool `yaml:"ticks_enabled"`
	// MetricsEnabled 是否输出连接指标文件
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsIntervalMs 指标输出间隔（毫秒）
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	// 应用默认值
	if c.App.Name == "" {
		c.App.Name = "kite-tick-watcher"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	// 行情连接默认值
	if c.Feed.APIKeyEnv == "" {
		c.Feed.APIKeyEnv = "KITE_API_KEY"
	}
	if c.Feed.AccessTokenEnv == "" {
		c.Feed.AccessTokenEnv = "KITE_ACCESS_TOKEN"
	}
	if c.Feed.ConnectTimeoutMs == 0 {
		c.Feed.ConnectTimeoutMs = 5000 // 5 秒
	}
	if c.Feed.PingIntervalMs == 0 {
		c.Feed.PingIntervalMs = 3000 // 3 秒
	}

	// 重连默认值（默认关闭，延迟 2s 起步翻倍封顶 60s，最多 30 次）
	if c.Feed.Reconnect.InitialDelayMs == 0 {
		c.Feed.Reconnect.InitialDelayMs = 2000
	}
	if c.Feed.Reconnect.MaxDelayMs == 0 {
		c.Feed.Reconnect.MaxDelayMs = 60000
	}
	if c.Feed.Reconnect.MaxTries == 0 {
		c.Feed.Reconnect.MaxTries = 30
	}

	// 输出默认值
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.MetricsIntervalMs == 0 {
		c.Output.MetricsIntervalMs = 10000 // 10 秒
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	// 验证行情连接配置
	if c.Feed.URL == "" {
		errs = append(errs, "feed.url: 行情 WebSocket 地址不能为空")
	} else if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		errs = append(errs, fmt.Sprintf("feed.url: 必须是 ws:// 或 wss:// 地址，当前值: %s", c.Feed.URL))
	}
	if c.Feed.ConnectTimeoutMs < 0 {
		errs = append(errs, "feed.connect_timeout_ms: 超时时间不能为负数")
	}
	if c.Feed.ReadTimeoutMs < 0 {
		errs = append(errs, "feed.read_timeout_ms: 超时时间不能为负数")
	}

	// 验证重连配置
	if c.Feed.Reconnect.InitialDelayMs <= 0 {
		errs = append(errs, "feed.reconnect.initial_delay_ms: 初始延迟必须为正数")
	}
	if c.Feed.Reconnect.MaxDelayMs < c.Feed.Reconnect.InitialDelayMs {
		errs = append(errs, "feed.reconnect.max_delay_ms: 最大延迟不能小于初始延迟")
	}
	if c.Feed.Reconnect.MaxTries < 0 {
		errs = append(errs, "feed.reconnect.max_tries: 最大尝试次数不能为负数")
	}

	// 验证订阅列表
	validModes := map[string]bool{"": true, "ltp": true, "quote": true, "full": true}
	for i, inst := range c.Instruments {
		if inst.Token == 0 {
			errs = append(errs, fmt.Sprintf("instruments[%d].token: token 不能为 0", i))
		}
		if !validModes[strings.ToLower(inst.Mode)] {
			errs = append(errs, fmt.Sprintf("instruments[%d].mode: 无效的订阅模式 '%s'，有效值: ltp, quote, full", i, inst.Mode))
		}
	}

	// 验证日志级别
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ResolveCredentials 从环境变量解析行情凭证
// 在 Load 之后、建连之前调用；两项凭证缺一不可。
func (c *Config) ResolveCredentials() error {
	c.Feed.APIKey = os.Getenv(c.Feed.APIKeyEnv)
	c.Feed.AccessToken = os.Getenv(c.Feed.AccessTokenEnv)

	var missing []string
	if c.Feed.APIKey == "" {
		missing = append(missing, c.Feed.APIKeyEnv)
	}
	if c.Feed.AccessToken == "" {
		missing = append(missing, c.Feed.AccessTokenEnv)
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺少行情凭证环境变量: %s", strings.Join(missing, ", "))
	}
	return nil
}
