// Package config resolves the settings shared by the rigbind commands from
// flags, environment variables and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultLeaseBackend = BackendSQLite
	defaultRedisAddr    = "127.0.0.1:6379"
	defaultLeaseTTL     = 30 * time.Second
	minLeaseTTL         = time.Second
	defaultLogLevel     = "info"
	defaultKeepBackups  = 10
	defaultArchiveAfter = 30 * 24 * time.Hour
)

// Lease backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendOff    = "off"
)

type Config struct {
	ScenePath       string
	DBPath          string
	LeaseBackend    string
	RedisAddr       string
	LeaseTTL        time.Duration
	LockWait        time.Duration
	BackupDir       string
	KeepBackups     int
	ArchiveAfter    time.Duration
	IncludeInactive bool
	MetricsTextfile string
	MetricsAddr     string
	LogLevel        slog.Level
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load registers the shared flags on fs, parses args and validates the
// result. Command specific flags must be registered on fs before calling
// Load; positional arguments are left in fs.Args().
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	leaseTTL := defaultLeaseTTL
	if ttlEnv := os.Getenv("RIGBIND_LEASE_TTL"); ttlEnv != "" {
		parsed, err := time.ParseDuration(ttlEnv)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RIGBIND_LEASE_TTL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("RIGBIND_LEASE_TTL must be positive")
		}
		leaseTTL = parsed
	}
	lockWait := time.Duration(0)
	if v := os.Getenv("RIGBIND_LOCK_WAIT"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RIGBIND_LOCK_WAIT: %w", err)
		}
		lockWait = parsed
	}
	keepBackups := defaultKeepBackups
	if v := os.Getenv("RIGBIND_KEEP_BACKUPS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RIGBIND_KEEP_BACKUPS: %w", err)
		}
		keepBackups = parsed
	}
	archiveAfter := defaultArchiveAfter
	if v := os.Getenv("RIGBIND_ARCHIVE_AFTER"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RIGBIND_ARCHIVE_AFTER: %w", err)
		}
		archiveAfter = parsed
	}
	includeInactive := false
	if v := os.Getenv("RIGBIND_INCLUDE_INACTIVE"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RIGBIND_INCLUDE_INACTIVE: %w", err)
		}
		includeInactive = parsed
	}

	fs.SetOutput(io.Discard)
	flagScene := fs.String("scene", os.Getenv("RIGBIND_SCENE"), "path to the scene document (.yaml or .json)")
	flagDB := fs.String("db", envOrDefault("RIGBIND_DB_PATH", filepath.Join(cwd, "rigbind.db")), "path to SQLite journal database")
	flagBackend := fs.String("lease-backend", envOrDefault("RIGBIND_LEASE_BACKEND", defaultLeaseBackend), "scene lease backend: sqlite|redis|off")
	flagRedis := fs.String("redis-addr", envOrDefault("RIGBIND_REDIS_ADDR", defaultRedisAddr), "redis address when lease-backend=redis")
	flagTTL := fs.String("lease-ttl", leaseTTL.String(), "scene lease time to live")
	flagLockWait := fs.Duration("lock-wait", lockWait, "how long to wait for a scene locked by another editor")
	flagBackupDir := fs.String("backup-dir", os.Getenv("RIGBIND_BACKUP_DIR"), "keep a copy of the scene here before every write (empty disables)")
	flagKeep := fs.Int("keep-backups", keepBackups, "backups kept per scene, 0 keeps all")
	flagArchiveAfter := fs.Duration("archive-after", archiveAfter, "move journal events older than this into the backup dir")
	flagInactive := fs.Bool("include-inactive", includeInactive, "descend into inactive subtrees")
	flagTextfile := fs.String("metrics-textfile", os.Getenv("RIGBIND_METRICS_TEXTFILE"), "write metrics in text format to this file on exit")
	flagMetricsAddr := fs.String("metrics-addr", os.Getenv("RIGBIND_METRICS_ADDR"), "serve /metrics on this address (long running commands)")
	flagLogLevel := fs.String("log-level", envOrDefault("RIGBIND_LOG_LEVEL", defaultLogLevel), "log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.PrintDefaults()
		}
		return Config{}, err
	}

	ttl, err := time.ParseDuration(*flagTTL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid lease ttl: %w", err)
	}
	if ttl <= 0 {
		return Config{}, errors.New("lease ttl must be positive")
	}
	if ttl < minLeaseTTL {
		return Config{}, fmt.Errorf("lease ttl must be at least %s", minLeaseTTL)
	}

	level, err := ParseLogLevel(*flagLogLevel)
	if err != nil {
		return Config{}, err
	}

	config := Config{
		ScenePath:       resolvePath(*flagScene, cwd),
		DBPath:          resolvePath(*flagDB, cwd),
		LeaseBackend:    normalizeBackend(*flagBackend),
		RedisAddr:       strings.TrimSpace(*flagRedis),
		LeaseTTL:        ttl,
		LockWait:        *flagLockWait,
		BackupDir:       resolvePath(*flagBackupDir, cwd),
		KeepBackups:     *flagKeep,
		ArchiveAfter:    *flagArchiveAfter,
		IncludeInactive: *flagInactive,
		MetricsTextfile: resolvePath(*flagTextfile, cwd),
		MetricsAddr:     strings.TrimSpace(*flagMetricsAddr),
		LogLevel:        level,
	}

	switch config.LeaseBackend {
	case BackendSQLite, BackendOff:
	case BackendRedis:
		if config.RedisAddr == "" {
			return Config{}, errors.New("lease-backend=redis requires redis-addr")
		}
	default:
		return Config{}, fmt.Errorf("unsupported lease backend: %s", config.LeaseBackend)
	}
	if config.LockWait < 0 {
		return Config{}, errors.New("lock wait cannot be negative")
	}
	if config.KeepBackups < 0 {
		return Config{}, errors.New("keep-backups cannot be negative")
	}
	if config.ArchiveAfter < 0 {
		return Config{}, errors.New("archive-after cannot be negative")
	}
	if config.DBPath == "" {
		return Config{}, errors.New("db cannot be empty")
	}

	return config, nil
}

// ParseLogLevel accepts the slog level names in any case.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger returns a JSON logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}

func normalizeBackend(backend string) string {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite", "sqlite3":
		return BackendSQLite
	case "redis":
		return BackendRedis
	case "off", "none", "disabled":
		return BackendOff
	default:
		return strings.ToLower(strings.TrimSpace(backend))
	}
}
