package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// 可覆盖的时间函数，便于测试。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// Clock 提供请求 timestamp（毫秒）
type Clock interface {
	NowMillis() int64
}

// LocalClock 直接使用本机时间
type LocalClock struct{}

func (LocalClock) NowMillis() int64 { return timeNowMillis() }

// TimeSync 记录本地时间与币安服务器时间的偏移。
// 只在显式调用 Sync 时访问网络，没有后台 goroutine。
type TimeSync struct {
	mu       sync.RWMutex
	offset   int64 // 服务器时间 - 本地时间（毫秒）
	lastSync time.Time
	fetch    func(ctx context.Context) (int64, error)
}

// NewTimeSync 创建时间同步器
func NewTimeSync(c *Client) *TimeSync {
	return &TimeSync{fetch: c.ServerTime}
}

// Sync 从 /fapi/v1/time 同步一次；以请求往返的中点估算本地时间。
func (ts *TimeSync) Sync(ctx context.Context) error {
	before := timeNowMillis()
	serverTime, err := ts.fetch(ctx)
	if err != nil {
		return fmt.Errorf("获取服务器时间失败: %w", err)
	}
	after := timeNowMillis()
	offset := serverTime - (before+after)/2

	ts.mu.Lock()
	ts.offset = offset
	ts.lastSync = time.Now()
	ts.mu.Unlock()
	return nil
}

// NowMillis 返回校正后的服务器时间（毫秒）；未同步时偏移为 0。
func (ts *TimeSync) NowMillis() int64 {
	return timeNowMillis() + ts.Offset()
}

// Offset 返回当前时间偏移量（毫秒）
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

func (ts *TimeSync) LastSync() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.lastSync
}
