// Package app wires the session, journal, logging router, and HTTP
// surface into a runnable server.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"sensorbridge/server"
	"sensorbridge/server/internal/geom"
	"sensorbridge/server/internal/journal"
	servernet "sensorbridge/server/internal/net"
	"sensorbridge/server/internal/net/ws"
	"sensorbridge/server/logging"
	loggingSinks "sensorbridge/server/logging/sinks"
)

type Config struct {
	Addr   string
	Logger *log.Logger
}

// Run boots the server and blocks until the listener fails.
//
// Environment overrides:
//
//	ADDR                    listen address (default :8080)
//	SURFACE_WIDTH/HEIGHT    pixel surface size
//	COORDINATE_MODE         "normalized" or "browserRelative"
//	REANIMATION_TIMEOUT_MS  end-buffer window, 0 disables buffering
//	PEN_SILENCE_TIMEOUT_MS  derived pen end after inactivity
//	MERGE_GESTURES          fuse scale+rotate streams
//	CHANGE_DROP_RATE        forward 1 of N point moves
//	GESTURE_DROP_RATE       forward 1 of N gesture changes
//	STRICT                  close connections on rejected messages
//	JOURNAL_PATH            SQLite event journal ("" disables)
//	LOG_SINKS               log sink to enable: console or json
//	LOG_JSON_PATH           ndjson output file for the json sink
//	INTAKE_RATE             inbound messages per second per connection
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	if raw := os.Getenv("ADDR"); raw != "" {
		addr = raw
	}

	logCfg := logging.DefaultConfig()
	if raw := os.Getenv("LOG_SINKS"); raw != "" {
		logCfg.EnabledSinks = []string{raw}
	}
	if raw := os.Getenv("LOG_JSON_PATH"); raw != "" {
		logCfg.JSON.FilePath = raw
	}

	sinks := make([]logging.NamedSink, 0, 2)
	if logCfg.HasSink("console") {
		sinks = append(sinks, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stdout, logCfg.Console),
		})
	}
	if logCfg.HasSink("json") && logCfg.JSON.FilePath != "" {
		file, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open json log: %w", err)
		}
		sinks = append(sinks, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSON(file, logCfg.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(nil, logCfg, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	sessionCfg := sessionConfigFromEnv(logger)

	deps := server.SessionDeps{Publisher: router}
	if path := os.Getenv("JOURNAL_PATH"); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		deps.Journal = j
	}

	session := server.NewSession(sessionCfg, deps)
	defer session.Close()

	intakeCfg := ws.HandlerConfig{Logger: logger, Strict: sessionCfg.Strict}
	if raw := os.Getenv("INTAKE_RATE"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			intakeCfg.RateLimit = rate.Limit(value)
			intakeCfg.RateBurst = int(value)
		} else {
			logger.Printf("invalid INTAKE_RATE=%q", raw)
		}
	}

	handler := servernet.NewHTTPHandler(session, servernet.HTTPHandlerConfig{
		Logger: logger,
		Intake: intakeCfg,
	})

	srv := &http.Server{Addr: addr, Handler: handler}
	logger.Printf("server listening on %s", srv.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func sessionConfigFromEnv(logger *log.Logger) server.SessionConfig {
	cfg := server.DefaultSessionConfig()

	envFloat(logger, "SURFACE_WIDTH", &cfg.SurfaceWidth)
	envFloat(logger, "SURFACE_HEIGHT", &cfg.SurfaceHeight)
	if raw := os.Getenv("COORDINATE_MODE"); raw != "" {
		cfg.CoordinateMode = geomMode(raw, logger, cfg.CoordinateMode)
	}
	envMillis(logger, "REANIMATION_TIMEOUT_MS", &cfg.Stabilize.ReanimationTimeout)
	cfg.Stabilize.DoBuffering = cfg.Stabilize.ReanimationTimeout > 0
	envMillis(logger, "PEN_SILENCE_TIMEOUT_MS", &cfg.Stabilize.PenSilenceTimeout)
	envBool(logger, "MERGE_GESTURES", &cfg.Stabilize.MergeGestures)
	envInt(logger, "CHANGE_DROP_RATE", &cfg.Stabilize.ChangeDropRate)
	envInt(logger, "GESTURE_DROP_RATE", &cfg.Stabilize.GestureDropRate)
	envBool(logger, "STRICT", &cfg.Strict)
	return cfg
}

func geomMode(raw string, logger *log.Logger, fallback geom.Mode) geom.Mode {
	switch geom.Mode(raw) {
	case geom.ModeNormalized, geom.ModeBrowserRelative:
		return geom.Mode(raw)
	default:
		logger.Printf("invalid COORDINATE_MODE=%q", raw)
		return fallback
	}
}

func envFloat(logger *log.Logger, key string, out *float64) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
		*out = value
	} else {
		logger.Printf("invalid %s=%q", key, raw)
	}
}

func envInt(logger *log.Logger, key string, out *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if value, err := strconv.Atoi(raw); err == nil && value > 0 {
		*out = value
	} else {
		logger.Printf("invalid %s=%q", key, raw)
	}
}

func envBool(logger *log.Logger, key string, out *bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if value, err := strconv.ParseBool(raw); err == nil {
		*out = value
	} else {
		logger.Printf("invalid %s=%q", key, raw)
	}
}

func envMillis(logger *log.Logger, key string, out *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
		*out = time.Duration(value) * time.Millisecond
	} else {
		logger.Printf("invalid %s=%q", key, raw)
	}
}
