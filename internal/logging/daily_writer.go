package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const filePrefix = "trading_bot_"

// DailyWriter 写入 <dir>/trading_bot_YYYYMMDD.log，日期变化时切换文件。
type DailyWriter struct {
	mu   sync.Mutex
	dir  string
	now  func() time.Time
	day  string
	file *os.File
}

func NewDailyWriter(dir string, now func() time.Time) (*DailyWriter, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	w := &DailyWriter{dir: dir, now: now}
	if err := w.rotate(); err != nil {
		return nil, err
	}
	return w, nil
}

// FileName 当前日期对应的日志文件名
func FileName(t time.Time) string {
	return filePrefix + t.Format("20060102") + ".log"
}

// Path 当前正在写入的文件
func (w *DailyWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil || w.now().Format("20060102") != w.day {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

// rotate 调用方持锁
func (w *DailyWriter) rotate() error {
	now := w.now()
	path := filepath.Join(w.dir, FileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	if w.file != nil {
		w.file.Close()
	}
	w.file = f
	w.day = now.Format("20060102")
	return nil
}

func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
