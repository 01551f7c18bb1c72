package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/blockstats/internal/api"
	"github.com/dgnsrekt/blockstats/internal/badge"
	"github.com/dgnsrekt/blockstats/internal/browser"
	"github.com/dgnsrekt/blockstats/internal/config"
	"github.com/dgnsrekt/blockstats/internal/controller"
	"github.com/dgnsrekt/blockstats/internal/filter"
	"github.com/dgnsrekt/blockstats/internal/host"
	"github.com/dgnsrekt/blockstats/internal/messaging"
	"github.com/dgnsrekt/blockstats/internal/netutil"
	"github.com/dgnsrekt/blockstats/internal/prefs"
	"github.com/dgnsrekt/blockstats/internal/stats"
)

const prefsLoadAttempts = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("blockstats config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"refresh_rate", cfg.RefreshRate,
		"filter_config", cfg.FilterConfig,
		"redis", cfg.RedisURL != "",
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	filters, err := loadFilters(cfg.FilterConfig)
	if err != nil {
		slog.Error("failed to load filters", "path", cfg.FilterConfig, "error", err)
		os.Exit(1)
	}

	store, closePrefs, err := openPrefs(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to open preferences", "error", err)
		os.Exit(1)
	}
	defer closePrefs()
	go loadPrefs(ctx, store)

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress:   cfg.CDPAddress,
			CDPPort:      cfg.CDPPort,
			StartURL:     cfg.StartURL,
			ProfileDir:   cfg.ProfileDir,
			LogDir:       cfg.BrowserLogDir,
			CrashDumpDir: cfg.CrashDumpDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	board := badge.NewBoard(badge.NewBroker())
	cdpHost := host.New(cfg.CDPURL(), filters)
	tracker := stats.NewTracker(store, board, cdpHost, stats.Options{
		RefreshRate: cfg.RefreshRate,
		Color:       cfg.BadgeColor,
	})
	defer tracker.Close()

	port := messaging.NewPort()
	messaging.RegisterStats(port, tracker)
	svc := controller.NewService(tracker, store, board, port, cdpHost)

	if err := cdpHost.Connect(ctx, svc.Listener()); err != nil {
		slog.Error("failed to connect to chromium", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cdpHost.Close(); err != nil {
			slog.Debug("host close failed", "error", err)
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := tracker.Start(startCtx); err != nil {
		slog.Warn("stats started without active tabs", "error", err)
	}
	startCancel()

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc)}
	go func() {
		slog.Info("blockstats listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("blockstats server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("blockstats shutdown failed", "error", err)
	}
}

// loadFilters builds the filter list from the YAML config. Without a config
// nothing is blocked and only events posted to the API are counted.
func loadFilters(path string) (*filter.List, error) {
	if path == "" {
		slog.Warn("no filter config set, requests will not be blocked")
		return filter.NewList(), nil
	}
	fc, err := filter.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return fc.Build()
}

// openPrefs picks the Redis backend when redisURL is set and starts following
// changes made by other processes.
func openPrefs(ctx context.Context, redisURL string) (*prefs.Store, func(), error) {
	if redisURL == "" {
		slog.Info("prefs using memory backend")
		return prefs.NewStore(prefs.NewMemoryBackend(), prefs.Defaults()), func() {}, nil
	}

	backend, err := prefs.NewRedisBackend(redisURL)
	if err != nil {
		return nil, nil, err
	}
	store := prefs.NewStore(backend, prefs.Defaults())
	go func() {
		if err := backend.Watch(ctx, store); err != nil {
			slog.Warn("prefs watch stopped", "error", err)
		}
	}()
	closeFn := func() {
		if err := backend.Close(); err != nil {
			slog.Debug("redis close failed", "error", err)
		}
	}
	slog.Info("prefs using redis backend")
	return store, closeFn, nil
}

// loadPrefs retries the initial load with backoff. Counting and badges start
// right away on the default preferences; lifetime total increments are queued
// until the store is ready.
func loadPrefs(ctx context.Context, store *prefs.Store) {
	delay := 500 * time.Millisecond
	for attempt := 1; attempt <= prefsLoadAttempts; attempt++ {
		loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := store.Load(loadCtx)
		cancel()
		if err == nil {
			slog.Info("prefs loaded", "show_statsinicon", store.ShowStatsInIcon(), "blocked_total", store.BlockedTotal())
			return
		}
		slog.Warn("prefs load failed", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	slog.Error("prefs never loaded, lifetime total will not be saved", "attempts", prefsLoadAttempts)
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
