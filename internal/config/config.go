package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"

	RegistryEC2    = "ec2"
	RegistryDocker = "docker"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Tier        string
	Store       StoreConfig
	Registry    string
	Docker      DockerConfig
	Nginx       NginxConfig
	Controller  ControllerConfig
	Probe       ProbeConfig
	MetricsAddr string
	RedisURL    string
	LogLevel    slog.Level
	LogFormat   string
}

type StoreConfig struct {
	Backend     string
	File        string
	DatabaseURL string
}

type DockerConfig struct {
	Host       string
	APIVersion string
}

// NginxConfig holds the host paths and commands used to install a config.
type NginxConfig struct {
	ConfigPath      string
	StatusPath      string
	PIDPath         string
	LogDir          string
	RootDir         string
	ValidateCmd     string
	ReloadCmd       string
	ReloadContainer string
}

type ControllerConfig struct {
	PollInterval time.Duration
	RunOnce      bool
	DryRun       bool
}

type ProbeConfig struct {
	Concurrency int
}

// Platform holds nginx locations that differ between operating systems.
type Platform struct {
	ConfigPath string
	PIDPath    string
	LogDir     string
	RootDir    string
}

// PlatformDefaults returns the nginx locations for goos.
func PlatformDefaults(goos string) Platform {
	if goos == "darwin" {
		return Platform{
			ConfigPath: "/usr/local/etc/nginx/nginx.conf",
			PIDPath:    "/usr/local/var/run/nginx.pid",
			LogDir:     "/usr/local/var/log",
			RootDir:    "/usr/local/share/nginx",
		}
	}
	return Platform{
		ConfigPath: "/etc/nginx/nginx.conf",
		PIDPath:    "/run/nginx.pid",
		LogDir:     "/var/log",
		RootDir:    "/usr/share/nginx",
	}
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	tier, err := requiredEnv("DRIFT_TIER")
	if err != nil {
		return Config{}, err
	}

	pollInterval := getEnvDefault("SYNC_POLL_INTERVAL", "30s")
	parsedInterval, err := time.ParseDuration(pollInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SYNC_POLL_INTERVAL: %w", err)
	}
	if parsedInterval <= 0 {
		return Config{}, fmt.Errorf("invalid SYNC_POLL_INTERVAL: must be positive")
	}

	runOnce, err := parseBoolEnv("SYNC_RUN_ONCE", false)
	if err != nil {
		return Config{}, err
	}
	dryRun, err := parseBoolEnv("SYNC_DRY_RUN", false)
	if err != nil {
		return Config{}, err
	}

	concurrency, err := parseIntEnv("PROBE_CONCURRENCY", 16)
	if err != nil {
		return Config{}, err
	}

	logLevel, err := parseLogLevel(getEnvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	logFormat := strings.ToLower(getEnvDefault("LOG_FORMAT", "text"))
	if logFormat != "text" && logFormat != "json" {
		return Config{}, fmt.Errorf("invalid LOG_FORMAT: %s", logFormat)
	}

	store := StoreConfig{
		Backend:     strings.ToLower(getEnvDefault("STORE_BACKEND", StoreFile)),
		File:        os.Getenv("STORE_FILE"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
	switch store.Backend {
	case StoreFile:
		if store.File == "" {
			return Config{}, fmt.Errorf("missing required STORE_FILE for file store")
		}
	case StorePostgres:
		if store.DatabaseURL == "" {
			return Config{}, fmt.Errorf("missing required DATABASE_URL for postgres store")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_BACKEND: %s", store.Backend)
	}

	registry := strings.ToLower(getEnvDefault("REGISTRY_BACKEND", RegistryEC2))
	if registry != RegistryEC2 && registry != RegistryDocker {
		return Config{}, fmt.Errorf("invalid REGISTRY_BACKEND: %s", registry)
	}

	platform := PlatformDefaults(runtime.GOOS)

	return Config{
		Tier:     tier,
		Store:    store,
		Registry: registry,
		Docker: DockerConfig{
			Host:       os.Getenv("DOCKER_HOST"),
			APIVersion: os.Getenv("DOCKER_API_VERSION"),
		},
		Nginx: NginxConfig{
			ConfigPath:      getEnvDefault("NGINX_CONFIG_PATH", platform.ConfigPath),
			StatusPath:      getEnvDefault("STATUS_PATH", platform.RootDir+"/api-router/status.json"),
			PIDPath:         platform.PIDPath,
			LogDir:          platform.LogDir,
			RootDir:         platform.RootDir,
			ValidateCmd:     getEnvDefault("NGINX_VALIDATE_CMD", "nginx -t -c {config}"),
			ReloadCmd:       getEnvDefault("NGINX_RELOAD_CMD", "nginx -s reload"),
			ReloadContainer: os.Getenv("NGINX_RELOAD_CONTAINER"),
		},
		Controller: ControllerConfig{
			PollInterval: parsedInterval,
			RunOnce:      runOnce,
			DryRun:       dryRun,
		},
		Probe:       ProbeConfig{Concurrency: concurrency},
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LogLevel:    logLevel,
		LogFormat:   logFormat,
	}, nil
}

// NewLogger builds the process logger for the configured level and format.
func (cfg Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func requiredEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("missing required %s", key)
	}
	return value, nil
}

func getEnvDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := parseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func parseIntEnv(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return parsed, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL: %s", value)
	}
}
