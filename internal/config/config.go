package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultBaseURL    = "https://testnet.binancefuture.com"
	DefaultConfigFile = "tradebot.yaml"
	DefaultEnvFile    = ".env"
)

// Config 全局配置结构
type Config struct {
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
}

// ExchangeConfig REST 接入参数
type ExchangeConfig struct {
	BaseURL      string        `mapstructure:"base_url"`       // 默认 testnet
	RecvWindowMs int64         `mapstructure:"recv_window_ms"` // 签名时间窗口
	Timeout      time.Duration `mapstructure:"timeout"`        // 单次请求超时
	TimeSync     bool          `mapstructure:"time_sync"`      // 是否先校准服务器时间
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

// MetricsConfig 仅交互模式下暴露 /metrics
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CredentialsConfig 来自配置文件/环境变量的凭证，优先级低于命令行 flag。
type CredentialsConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// Loader 每次调用持有独立的 viper 实例，不使用包级全局状态。
type Loader struct {
	v       *viper.Viper
	path    string
	EnvFile string
}

// NewLoader path 为空时尝试当前目录下的 tradebot.yaml（不存在则只用默认值+环境变量）。
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetDefault("exchange.base_url", DefaultBaseURL)
	v.SetDefault("exchange.recv_window_ms", 5000)
	v.SetDefault("exchange.timeout", 10*time.Second)
	v.SetDefault("exchange.time_sync", false)
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "debug")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9108)
	v.SetDefault("credentials.api_key", "")
	v.SetDefault("credentials.api_secret", "")

	// 环境变量覆盖：TRADEBOT_EXCHANGE_TIMEOUT 等
	v.SetEnvPrefix("TRADEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 显式绑定 Binance 惯用的变量名
	v.BindEnv("credentials.api_key", "BINANCE_API_KEY")
	v.BindEnv("credentials.api_secret", "BINANCE_API_SECRET")
	v.BindEnv("exchange.base_url", "BINANCE_REST_URL")

	return &Loader{v: v, path: path, EnvFile: DefaultEnvFile}
}

// BindFlags 把命令行 flag 绑定到配置键；只有用户显式传入的 flag 才会覆盖。
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"log.level":               "log-level",
		"log.dir":                 "log-dir",
		"exchange.base_url":       "base-url",
		"exchange.timeout":        "timeout",
		"exchange.recv_window_ms": "recv-window",
		"exchange.time_sync":      "time-sync",
	}
	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load 读取 .env、配置文件和环境变量并校验。
func (l *Loader) Load() (*Config, error) {
	if l.EnvFile != "" {
		// .env 不覆盖已存在的环境变量
		if err := godotenv.Load(l.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取 %s 失败: %w", l.EnvFile, err)
		}
	}

	path := l.path
	explicit := path != ""
	if !explicit {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		l.v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
			l.v.SetConfigType("yaml")
		}
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &cfg, nil
}

// ConfigFile 实际使用的配置文件；未使用时为空。
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch 监听配置文件变化并热重载，新配置校验失败时保持旧配置。
// 没有配置文件时返回 false。
func (l *Loader) Watch(logger zerolog.Logger, onChange func(*Config)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info().Str("file", e.Name).Msg("检测到配置文件变化，正在重载...")
		cfg, err := l.unmarshal()
		if err != nil {
			logger.Error().Err(err).Msg("新配置无效，保持旧配置")
			return
		}
		onChange(cfg)
		logger.Info().Msg("配置热重载成功")
	})
	l.v.WatchConfig()
	return true
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate 验证配置有效性
func Validate(cfg *Config) error {
	u, err := url.Parse(cfg.Exchange.BaseURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("exchange.base_url 必须是 http(s) 绝对地址, got %q", cfg.Exchange.BaseURL)
	}
	if cfg.Exchange.RecvWindowMs < 1 || cfg.Exchange.RecvWindowMs > 60000 {
		return fmt.Errorf("exchange.recv_window_ms 必须在 1-60000 之间")
	}
	if cfg.Exchange.Timeout < time.Millisecond || cfg.Exchange.Timeout > 2*time.Minute {
		return fmt.Errorf("exchange.timeout 必须在 1ms-2m 之间")
	}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("log.level 无效: %q", cfg.Log.Level)
	}
	if cfg.Log.Dir == "" {
		return fmt.Errorf("log.dir 不能为空")
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port 无效: %d", cfg.Metrics.Port)
	}
	return nil
}
