// Package config 负责加载和验证 YAML 配置文件。
// 提供采集程序所需的配置项：日志、输出目录、重连策略、指标端口以及各交易所连接参数。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 支持的交易所名称（同时用作日志文件前缀）
const (
	ExchangeBitfinex = "bitfinex"
	ExchangeBitflyer = "bitflyer"
	ExchangeBitmex   = "bitmex"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Dump 采集日志输出配置
	Dump DumpConfig `yaml:"dump"`
	// Reconnect 重连策略
	Reconnect ReconnectConfig `yaml:"reconnect"`
	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics"`
	// Exchanges 各交易所配置
	Exchanges ExchangesConfig `yaml:"exchanges"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// LogFile 日志文件路径，为空时只输出到标准错误
	LogFile string `yaml:"log_file"`
	// LogMaxSizeMB 单个日志文件最大大小（MB）
	LogMaxSizeMB int `yaml:"log_max_size_mb"`
	// LogMaxBackups 保留的旧日志文件数量
	LogMaxBackups int `yaml:"log_max_backups"`
	// LogMaxAgeDays 旧日志文件保留天数
	LogMaxAgeDays int `yaml:"log_max_age_days"`
	// LogCompress 是否压缩旧日志文件
	LogCompress bool `yaml:"log_compress"`
}

// DumpConfig 采集日志输出配置
type DumpConfig struct {
	// Dir 输出目录，启动时自动创建
	Dir string `yaml:"dir"`
	// FileExt 日志文件扩展名
	FileExt string `yaml:"file_ext"`
}

// ReconnectConfig 重连策略
type ReconnectConfig struct {
	// BaseMs 初始等待时间（毫秒）
	BaseMs int `yaml:"base_ms"`
	// MaxMs 最大等待时间（毫秒）
	MaxMs int `yaml:"max_ms"`
	// StableAfterMs 连接存活超过此时长视为稳定，下次立即重连（毫秒）
	StableAfterMs int `yaml:"stable_after_ms"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Addr HTTP 监听地址，如 :9100；为空时不启动
	Addr string `yaml:"addr"`
}

// ExchangesConfig 各交易所配置
type ExchangesConfig struct {
	// Bitfinex Bitfinex 配置
	Bitfinex BitfinexConfig `yaml:"bitfinex"`
	// Bitflyer bitFlyer 配置
	Bitflyer BitflyerConfig `yaml:"bitflyer"`
	// Bitmex BitMEX 配置
	Bitmex BitmexConfig `yaml:"bitmex"`
}

// BitfinexConfig Bitfinex 配置
type BitfinexConfig struct {
	// Enabled 是否启用
	Enabled bool `yaml:"enabled"`
	// URL WebSocket 地址，为空时使用默认地址
	URL string `yaml:"url"`
	// TickersURL ticker 元数据地址，为空时使用默认地址
	TickersURL string `yaml:"tickers_url"`
	// ChannelLimit 单连接频道上限；每个交易对占用 trades 与 book 两个频道
	ChannelLimit int `yaml:"channel_limit"`
	// BookLen 订单簿深度
	BookLen string `yaml:"book_len"`
	// TimeoutMs 元数据请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// HandshakeTimeoutMs WebSocket 握手超时（毫秒）
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
}

// BitflyerConfig bitFlyer 配置
type BitflyerConfig struct {
	// Enabled 是否启用
	Enabled bool `yaml:"enabled"`
	// URL WebSocket 地址，为空时使用默认地址
	URL string `yaml:"url"`
	// MarketsURL 产品列表地址，为空时使用默认地址
	MarketsURL string `yaml:"markets_url"`
	// TimeoutMs 元数据请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// HandshakeTimeoutMs WebSocket 握手超时（毫秒）
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
}

// BitmexConfig BitMEX 配置
type BitmexConfig struct {
	// Enabled 是否启用
	Enabled bool `yaml:"enabled"`
	// URL WebSocket 地址（包含订阅主题），为空时使用默认地址
	URL string `yaml:"url"`
	// HandshakeTimeoutMs WebSocket 握手超时（毫秒）
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容、填充默认值并验证
func Parse(data []byte) (*Config, error) {
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
	if c.App.Name == "" {
		c.App.Name = "exchange-dumper"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogMaxSizeMB == 0 {
		c.App.LogMaxSizeMB = 100
	}
	if c.App.LogMaxBackups == 0 {
		c.App.LogMaxBackups = 10
	}
	if c.App.LogMaxAgeDays == 0 {
		c.App.LogMaxAgeDays = 30
	}

	if c.Dump.Dir == "" {
		c.Dump.Dir = "./dump"
	}
	if c.Dump.FileExt == "" {
		c.Dump.FileExt = "gz"
	}

	if c.Reconnect.BaseMs == 0 {
		c.Reconnect.BaseMs = 1000 // 1 秒
	}
	if c.Reconnect.MaxMs == 0 {
		c.Reconnect.MaxMs = 60000 // 60 秒
	}
	if c.Reconnect.StableAfterMs == 0 {
		c.Reconnect.StableAfterMs = 300000 // 5 分钟
	}

	bf := &c.Exchanges.Bitfinex
	if bf.ChannelLimit == 0 {
		bf.ChannelLimit = 30
	}
	if bf.BookLen == "" {
		bf.BookLen = "100"
	}
	if bf.TimeoutMs == 0 {
		bf.TimeoutMs = 10000
	}
	if c.Exchanges.Bitflyer.TimeoutMs == 0 {
		c.Exchanges.Bitflyer.TimeoutMs = 10000
	}
}

// Validate 验证配置合法性
// 返回: 若配置无效则返回描述性错误（列出全部问题）
func (c *Config) Validate() error {
	var errs []string

	if c.Dump.Dir == "" {
		errs = append(errs, "dump.dir: 输出目录不能为空")
	}
	if c.Dump.FileExt == "" || strings.ContainsAny(c.Dump.FileExt, "/\\") {
		errs = append(errs, fmt.Sprintf("dump.file_ext: 扩展名不能为空或包含路径分隔符，当前值: %q", c.Dump.FileExt))
	}

	if c.Reconnect.BaseMs <= 0 {
		errs = append(errs, "reconnect.base_ms: 初始等待时间必须为正数")
	}
	if c.Reconnect.MaxMs < c.Reconnect.BaseMs {
		errs = append(errs, "reconnect.max_ms: 最大等待时间不能小于初始等待时间")
	}
	if c.Reconnect.StableAfterMs <= 0 {
		errs = append(errs, "reconnect.stable_after_ms: 稳定阈值必须为正数")
	}

	bf := c.Exchanges.Bitfinex
	if bf.ChannelLimit < 2 {
		errs = append(errs, "exchanges.bitfinex.channel_limit: 至少需要 2 个频道（trades + book）")
	}
	switch bf.BookLen {
	case "1", "25", "100", "250":
	default:
		errs = append(errs, fmt.Sprintf("exchanges.bitfinex.book_len: 无效的订单簿深度 '%s'，有效值: 1, 25, 100, 250", bf.BookLen))
	}

	if len(c.EnabledExchanges()) == 0 {
		errs = append(errs, "exchanges: 至少需要启用一个交易所")
	}

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

// EnabledExchanges 返回已启用的交易所名称（固定顺序）
func (c *Config) EnabledExchanges() []string {
	var out []string
	if c.Exchanges.Bitfinex.Enabled {
		out = append(out, ExchangeBitfinex)
	}
	if c.Exchanges.Bitflyer.Enabled {
		out = append(out, ExchangeBitflyer)
	}
	if c.Exchanges.Bitmex.Enabled {
		out = append(out, ExchangeBitmex)
	}
	return out
}

// Only 只保留指定交易所（命令行 -exchange 参数）
func (c *Config) Only(name string) error {
	switch name {
	case ExchangeBitfinex, ExchangeBitflyer, ExchangeBitmex:
	default:
		return fmt.Errorf("未知交易所: %s", name)
	}
	c.Exchanges.Bitfinex.Enabled = name == ExchangeBitfinex
	c.Exchanges.Bitflyer.Enabled = name == ExchangeBitflyer
	c.Exchanges.Bitmex.Enabled = name == ExchangeBitmex
	return nil
}

// Base 初始等待时间
func (r ReconnectConfig) Base() time.Duration {
	return time.Duration(r.BaseMs) * time.Millisecond
}

// Max 最大等待时间
func (r ReconnectConfig) Max() time.Duration {
	return time.Duration(r.MaxMs) * time.Millisecond
}

// StableAfter 稳定连接阈值
func (r ReconnectConfig) StableAfter() time.Duration {
	return time.Duration(r.StableAfterMs) * time.Millisecond
}
