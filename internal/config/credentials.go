package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrMissingCredentials 所有来源都拿不到 key/secret
var ErrMissingCredentials = errors.New("API key and secret are required (flags, BINANCE_API_KEY/BINANCE_API_SECRET or prompt)")

// Credentials 只在内存中存在；String/日志输出都会遮蔽 secret。
type Credentials struct {
	APIKey    string
	APISecret string
}

// Complete key 与 secret 都非空
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.APISecret) != ""
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{APIKey: %s, APISecret: %s}", maskKey(c.APIKey), maskSecret(c.APISecret))
}

func (c Credentials) GoString() string { return c.String() }

func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("api_key", maskKey(c.APIKey)).Bool("has_secret", c.APISecret != "")
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + "****"
}

func maskSecret(s string) string {
	if s == "" {
		return "<empty>"
	}
	return "****"
}

// Prompter 交互式补全缺失的凭证（menu.Console 实现）。
type Prompter interface {
	Prompt(label, def string) (string, error)
}

// ResolveCredentials 按优先级解析凭证：命令行 flag > 环境变量/.env/配置文件 > 交互输入。
// p 为 nil 时不提示。
func ResolveCredentials(flagKey, flagSecret string, cfg CredentialsConfig, p Prompter) (Credentials, error) {
	creds := Credentials{
		APIKey:    firstNonEmpty(flagKey, cfg.APIKey),
		APISecret: firstNonEmpty(flagSecret, cfg.APISecret),
	}
	if p != nil {
		if strings.TrimSpace(creds.APIKey) == "" {
			v, err := p.Prompt("API key", "")
			if err != nil {
				return Credentials{}, fmt.Errorf("read api key: %w", err)
			}
			creds.APIKey = strings.TrimSpace(v)
		}
		if strings.TrimSpace(creds.APISecret) == "" {
			v, err := p.Prompt("API secret", "")
			if err != nil {
				return Credentials{}, fmt.Errorf("read api secret: %w", err)
			}
			creds.APISecret = strings.TrimSpace(v)
		}
	}
	if !creds.Complete() {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
