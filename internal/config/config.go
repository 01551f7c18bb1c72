package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the blockstats daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	LogLevel string
	LogFile  string

	// Preference storage; empty keeps preferences in memory.
	RedisURL string

	// Badge behavior
	RefreshRate int
	BadgeColor  string

	// YAML file listing filter lists and inline rules.
	FilterConfig string

	// Browser launch
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string
	BrowserLogDir string
	CrashDumpDir  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:         getEnvOrDefault("BLOCKSTATS_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("BLOCKSTATS_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		PortAutoFallback: getEnvBoolOrDefault("BLOCKSTATS_PORT_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("BLOCKSTATS_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("BLOCKSTATS_LOG_FILE", "logs/blockstats.log"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RefreshRate:      getEnvIntOrDefault("BLOCKSTATS_REFRESH_RATE", 4),
		BadgeColor:       getEnvOrDefault("BLOCKSTATS_BADGE_COLOR", "#646464"),
		FilterConfig:     os.Getenv("BLOCKSTATS_FILTER_CONFIG"),
		LaunchBrowser:    getEnvBoolOrDefault("BLOCKSTATS_LAUNCH_BROWSER", false),
		StartURL:         getEnvOrDefault("BLOCKSTATS_START_URL", "about:blank"),
		ProfileDir:       getEnvOrDefault("CHROMIUM_PROFILE_DIR", "./browser-profile"),
		BrowserLogDir:    getEnvOrDefault("CHROMIUM_LOG_DIR", "./logs/chromium"),
		CrashDumpDir:     getEnvOrDefault("CHROMIUM_CRASH_DUMP_DIR", "./logs/chromium/crashes"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CDPPort <= 0 || c.CDPPort > 65535 {
		return fmt.Errorf("config: CHROMIUM_CDP_PORT out of range: %d", c.CDPPort)
	}
	if c.RefreshRate < 1 {
		return fmt.Errorf("config: BLOCKSTATS_REFRESH_RATE must be at least 1, got %d", c.RefreshRate)
	}
	if !strings.HasPrefix(c.BadgeColor, "#") {
		return fmt.Errorf("config: BLOCKSTATS_BADGE_COLOR must be a hex color, got %q", c.BadgeColor)
	}
	return nil
}

// CDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma separated value, dropping empty items.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
