package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/engine/wazero"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/state"
	"github.com/wippyai/wasm-bridge/state/avadb"
	"github.com/wippyai/wasm-bridge/state/boltdb"
	"github.com/wippyai/wasm-bridge/system"
)

const (
	keyConfig      = "config"
	keyLogLevel    = "log-level"
	keyLogFormat   = "log-format"
	keyBackend     = "backend"
	keyMemoryLimit = "memory-limit-pages"
	keyFuel        = "fuel"
	keyState       = "state"
	keyApp         = "app"
	keyTimeout     = "timeout"
	keyMetricsAddr = "metrics-addr"
)

type config struct {
	LogLevel         string
	LogFormat        string
	Backend          string
	MemoryLimitPages uint32
	Fuel             uint64
	StatePath        string
	App              ids.ID
	Timeout          time.Duration
	MetricsAddr      string
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String(keyConfig, "", "config file (yaml, json or toml)")
	fs.String(keyLogLevel, "info", "log level: debug, info, warn, error")
	fs.String(keyLogFormat, "console", "log format: console or json")
	fs.String(keyBackend, runtime.DefaultBackend, "sandbox backend")
	fs.Uint32(keyMemoryLimit, 0, "linear memory cap in 64KB pages (0 = backend default)")
	fs.Uint64(keyFuel, 0, "instruction budget per context (wasmtime only, 0 = unmetered)")
	fs.String(keyState, "", "bbolt state file (empty = in-memory)")
	fs.String(keyApp, "", "application ID (cb58, empty = zero ID)")
	fs.Duration(keyTimeout, 30*time.Second, "deadline for each guest call")
	fs.String(keyMetricsAddr, "", "serve prometheus metrics on this address")
}

// newViper binds the command's flags, BRIDGE_* environment variables and an
// optional config file, in increasing order of precedence: file, env, flags.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if file := v.GetString(keyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		LogLevel:         v.GetString(keyLogLevel),
		LogFormat:        v.GetString(keyLogFormat),
		Backend:          v.GetString(keyBackend),
		MemoryLimitPages: v.GetUint32(keyMemoryLimit),
		Fuel:             v.GetUint64(keyFuel),
		StatePath:        v.GetString(keyState),
		Timeout:          v.GetDuration(keyTimeout),
		MetricsAddr:      v.GetString(keyMetricsAddr),
	}
	if s := v.GetString(keyApp); s != "" {
		id, err := ids.FromString(s)
		if err != nil {
			return config{}, fmt.Errorf("parse --%s: %w", keyApp, err)
		}
		cfg.App = id
	}
	return cfg, nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	switch format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console", "":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// installLogger routes every package logger to log.
func installLogger(log *zap.Logger) {
	runtime.SetLogger(log)
	system.SetLogger(log)
	wazero.SetLogger(log)
}

// openStorage returns the application's storage and a function closing the
// underlying store.
func (c config) openStorage() (state.Storage, func() error, error) {
	if c.StatePath == "" {
		store := avadb.NewMemory()
		return store.Application(c.App), store.Close, nil
	}
	store, err := boltdb.Open(c.StatePath)
	if err != nil {
		return nil, nil, err
	}
	return store.Application(c.App), store.Close, nil
}

func (c config) backend(ctx context.Context) (runtime.Preparer, error) {
	return runtime.New(ctx, c.Backend, runtime.Config{
		MemoryLimitPages: c.MemoryLimitPages,
		Fuel:             c.Fuel,
	})
}

// serveMetrics exposes the bridge metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return nil
}
