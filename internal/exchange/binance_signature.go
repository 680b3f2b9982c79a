package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

type param struct {
	key   string
	value string
}

// Params 有序参数表。签名串按插入顺序拼接，发出去的 query 与签名串逐字节一致。
type Params struct {
	items []param
}

// Set 追加参数；key 已存在时原位替换。
func (p *Params) Set(key, value string) {
	for i := range p.items {
		if p.items[i].key == key {
			p.items[i].value = value
			return
		}
	}
	p.items = append(p.items, param{key: key, value: value})
}

func (p Params) Get(key string) (string, bool) {
	for _, it := range p.items {
		if it.key == key {
			return it.value, true
		}
	}
	return "", false
}

func (p Params) Keys() []string {
	keys := make([]string, 0, len(p.items))
	for _, it := range p.items {
		keys = append(keys, it.key)
	}
	return keys
}

func (p Params) Len() int { return len(p.items) }

// Encode 生成 k=v&k=v，key/value 均经 url.QueryEscape。
func (p Params) Encode() string {
	return p.encode("")
}

func (p Params) encode(skip string) string {
	var b strings.Builder
	for _, it := range p.items {
		if it.key == skip {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(it.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(it.value))
	}
	return b.String()
}

// SignParams 生成 Binance 所需的签名（secret 外部提供）。
// 返回签名串本身和 hex(HMAC-SHA256(secret, query))。
func SignParams(params Params, secret string) (string, string) {
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return query, hex.EncodeToString(mac.Sum(nil))
}
