// Package logx 构造进程级 slog.Logger。
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 对应配置文件中的 log 段。
type Options struct {
	Level string // debug|info|warn|error
	// File 非空时写入 JSON 日志并按大小滚动；为空时以文本格式写到 Stderr。
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel 解析日志级别；空串视为 info。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("未知日志级别：%q", s)
	}
}

// New 返回 logger 以及需要在退出时关闭的 closer（可能为 nil）。
func New(o Options, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(o.Level)
	if err != nil {
		return nil, nil, err
	}
	hopts := &slog.HandlerOptions{Level: lvl}

	if strings.TrimSpace(o.File) == "" {
		return slog.New(slog.NewTextHandler(stderr, hopts)), nil, nil
	}

	w := &lumberjack.Logger{
		Filename:   strings.TrimSpace(o.File),
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}
	if w.MaxSize <= 0 {
		w.MaxSize = 32
	}
	return slog.New(slog.NewJSONHandler(w, hopts)), w, nil
}

// Discard 用于测试与未注入 logger 的场景。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
