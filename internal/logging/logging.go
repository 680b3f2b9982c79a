// Package logging 组装 zerolog：控制台人类可读输出 + 按天滚动的 JSON 文件。
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options 日志初始化参数
type Options struct {
	Dir     string    // 日志目录；为空则只输出到控制台
	Level   string    // 文件日志级别，控制台至少为 info
	Console io.Writer // 默认 os.Stderr
	Now     func() time.Time
}

// ParseLevel 与 setupLogger 相同的级别映射，未知值按 info。
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Output 持有 Setup 创建的 writer，可在运行中调整级别并在退出前关闭文件。
type Output struct {
	console *levelWriter
	file    *levelWriter
	closer  io.Closer
}

// SetLevel 热更新级别：文件使用 level，控制台不低于 info。
// logger 按 trace 构建，过滤只在 writer 上做。
func (o *Output) SetLevel(level string) {
	l := ParseLevel(level)
	o.console.setMin(consoleLevel(l))
	if o.file != nil {
		o.file.setMin(l)
	}
}

// Level 文件 writer 的当前级别；没有文件时为控制台级别。
func (o *Output) Level() zerolog.Level {
	if o.file != nil {
		return o.file.level()
	}
	return o.console.level()
}

func (o *Output) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// Setup 返回配置好的 logger 和它的 Output。
func Setup(opts Options) (zerolog.Logger, *Output, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	level := ParseLevel(opts.Level)

	out := &Output{console: newLevelWriter(zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}, consoleLevel(level))}
	writers := []io.Writer{out.console}

	if opts.Dir != "" {
		dw, err := NewDailyWriter(opts.Dir, opts.Now)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		out.file = newLevelWriter(dw, level)
		out.closer = dw
		writers = append(writers, out.file)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.TraceLevel).
		With().
		Timestamp().
		Logger()
	return logger, out, nil
}

func consoleLevel(l zerolog.Level) zerolog.Level {
	if l < zerolog.InfoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// levelWriter 按级别过滤，单个 writer 低于 min 的事件丢弃
type levelWriter struct {
	w   io.Writer
	min atomic.Int32
}

func newLevelWriter(w io.Writer, min zerolog.Level) *levelWriter {
	lw := &levelWriter{w: w}
	lw.setMin(min)
	return lw
}

func (l *levelWriter) setMin(level zerolog.Level) { l.min.Store(int32(level)) }

func (l *levelWriter) level() zerolog.Level { return zerolog.Level(l.min.Load()) }

func (l *levelWriter) Write(p []byte) (int, error) {
	return l.w.Write(p)
}

func (l *levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < l.level() {
		return len(p), nil
	}
	return l.w.Write(p)
}
