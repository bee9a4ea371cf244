// 文件: pkg/logger/logger.go
// 统一日志 (logrus)

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options 日志配置
type Options struct {
	Level  string // debug / info / warn / error
	Format string // text / json
	File   string // 为空时只输出到 stderr
}

// New 创建 logger。
// 指定 File 时同时写 stderr 和文件，返回的 io.Closer 用于关闭文件。
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(opts.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		l.SetOutput(io.MultiWriter(os.Stderr, f))
		closer = f
	} else {
		l.SetOutput(os.Stderr)
	}

	return l, closer, nil
}

// Component 带组件名的 entry
func Component(l logrus.FieldLogger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
