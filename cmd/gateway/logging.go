package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/RackSec/srslog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/z3950gw/gateway/internal/config"
)

// multiWriter fans slog JSON lines out to every configured sink, mirroring
// the teacher's ambient logging setup: stdout always, plus optional syslog
// and rotating-file sinks driven by LoggingConfig.
type multiWriter struct {
	writers []writerSink
}

type writerSink interface {
	Write(p []byte) (int, error)
}

func (m multiWriter) Write(p []byte) (int, error) {
	for _, w := range m.writers {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

// newLogger builds the process-wide slog.Logger from LoggingConfig: a JSON
// or text handler over stdout plus optional RackSec/srslog and
// natefinch/lumberjack sinks.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	sinks := []writerSink{os.Stdout}

	if cfg.Syslog.Enabled {
		w, err := srslog.Dial(cfg.Syslog.Network, cfg.Syslog.Addr, srslog.LOG_INFO, cfg.Syslog.Tag)
		if err != nil {
			return nil, fmt.Errorf("dial syslog: %w", err)
		}
		sinks = append(sinks, w)
	}

	if cfg.File.Enabled {
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
		})
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	out := multiWriter{writers: sinks}
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler), nil
}
