package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields = logrus.Fields

type Options struct {
	Debug bool
	// Dir receives rotated log files. Empty disables file output.
	Dir string
	// Env "test" keeps everything on stderr.
	Env string
	Out io.Writer
}

func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.SetFormatter(&formatter.Formatter{
		NoColors:        opts.Env == "test",
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		FieldsOrder:     []string{"request_id", "method", "path", "status"},
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}

	if opts.Env != "test" && opts.Dir != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, fmt.Sprintf("app-%s.log", time.Now().Format("2006-01-02"))),
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		}
		writers = append(writers, fileWriter)
	}

	logger.SetOutput(io.MultiWriter(writers...))
	logger.SetReportCaller(true)
	return logger
}

type ctxKey struct{}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
			return id
		}
	}
	return "unknown"
}

func WithRequestID(ctx context.Context, logger logrus.FieldLogger) *logrus.Entry {
	return logger.WithField("request_id", RequestID(ctx))
}
