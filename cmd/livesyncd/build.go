package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/config"
	"github.com/livesync/backend/internal/persist"
	"github.com/livesync/backend/internal/report"
	"github.com/livesync/backend/internal/settings"
)

const defaultHTTPTimeout = 10 * time.Second

// openSettings opens the settings backend selected by state.backend.
func openSettings(cfg config.StateConfig) (settings.Store, error) {
	switch cfg.Backend {
	case "file":
		return settings.NewFileStore(cfg.Path), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(settings.DefaultDir(), "state.db")
		}
		return settings.NewSQLiteStore(path)
	case "memory":
		return settings.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
}

// retention maps state.retention onto the engine option, where a zero
// config value disables expiry.
func retention(cfg config.StateConfig) time.Duration {
	if cfg.Retention == 0 {
		return -1
	}
	return cfg.Retention
}

func openRecords(cfg config.StateConfig) (*persist.Store, settings.Store, error) {
	kv, err := openSettings(cfg)
	if err != nil {
		return nil, nil, err
	}
	return persist.New(kv, persist.WithKey(cfg.Key), persist.WithRetention(cfg.Retention)), kv, nil
}

// buildReporter builds one reporter per configured sink. Several sinks
// are fanned out through report.Multi.
func buildReporter(cfg config.ReportConfig, ident report.Identity, c clock.Clock) (report.Reporter, error) {
	var sinks report.Multi
	for i, sc := range cfg.Sinks {
		sink, err := buildSink(sc, ident, c)
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("report.sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		return report.LogSink{}, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

func buildSink(sc config.SinkConfig, ident report.Identity, c clock.Clock) (report.Reporter, error) {
	codec, err := report.ParseCodec(sc.Codec)
	if err != nil {
		return nil, err
	}

	switch sc.Type {
	case "log":
		return report.LogSink{}, nil
	case "http":
		timeout := sc.Timeout
		if timeout == 0 {
			timeout = defaultHTTPTimeout
		}
		sink := report.NewHTTPSink(sc.URL, sc.Token, timeout, ident)
		sink.Codec = codec
		return sink, nil
	case "ws":
		return report.NewWSSink(sc.URL, sc.Token, codec, ident, c), nil
	case "amqp":
		return report.NewAMQPSink(sc.URL, sc.Exchange, sc.RoutingKey, codec, ident)
	}
	return nil, fmt.Errorf("unknown sink type %q", sc.Type)
}
