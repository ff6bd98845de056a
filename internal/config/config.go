package config

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server-side settings
	DatabaseDSN string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`

	// Shared settings
	BaseURL     string `env:"BASE_URL"`
	EnableHTTPS bool   `env:"ENABLE_HTTPS"`

	// Client-side settings
	ServerURL    string `env:"-"`
	SocketURL    string `env:"-"`
	ClientDBPath string `env:"CLIENT_DB_PATH"`

	// Transport
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	ReconnectMin   time.Duration `env:"RECONNECT_MIN"`
	ReconnectMax   time.Duration `env:"RECONNECT_MAX"`

	// Параметры Argon2id для резервной копии ключа
	BackupKDFTime      uint `env:"BACKUP_KDF_TIME"`
	BackupKDFMemoryKiB uint `env:"BACKUP_KDF_MEMORY_KIB"`

	Debug   bool `env:"DEBUG"`
	Version bool `env:"-"` // show client version and exit (flag only)
}

var hostPortRe = regexp.MustCompile(`^[A-Za-z0-9\.\-]+:\d{1,5}$`)

func NewConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	_ = env.Parse(cfg)

	// flags работают ТОЛЬКО если переменные из env не заданы
	// Server flags
	flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "строка подключения к БД (postgres DSN или sqlite:путь)")
	flag.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "секрет для подписи JWT")
	// Shared/client flags
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "address of the FromChat server (host:port)")
	flag.BoolVar(&cfg.EnableHTTPS, "https", cfg.EnableHTTPS, "enable HTTPS (client: https/wss schemes)")
	// Client flags
	flag.StringVar(&cfg.ClientDBPath, "client-db", cfg.ClientDBPath, "directory for per-user client SQLite DBs")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "socket request timeout")
	flag.DurationVar(&cfg.ReconnectMin, "reconnect-min", cfg.ReconnectMin, "initial reconnect delay")
	flag.DurationVar(&cfg.ReconnectMax, "reconnect-max", cfg.ReconnectMax, "maximum reconnect delay")
	flag.UintVar(&cfg.BackupKDFTime, "backup-kdf-time", cfg.BackupKDFTime, "argon2id passes for the key backup")
	flag.UintVar(&cfg.BackupKDFMemoryKiB, "backup-kdf-memory", cfg.BackupKDFMemoryKiB, "argon2id memory (KiB) for the key backup")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "verbose client logging")
	flag.BoolVar(&cfg.Version, "version", cfg.Version, "Show client version and exit")

	flag.Parse()

	// Defaults
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "dev-secret-key"
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "sqlite:fromchat.db"
	}
	// validate BaseURL: must be in "address:port" (no scheme, no path). Otherwise use default.
	if !hostPortRe.MatchString(cfg.BaseURL) {
		cfg.BaseURL = "localhost:8081"
	}

	if cfg.EnableHTTPS {
		cfg.ServerURL = "https://" + cfg.BaseURL
		cfg.SocketURL = "wss://" + cfg.BaseURL + "/chat/ws"
	} else {
		cfg.ServerURL = "http://" + cfg.BaseURL
		cfg.SocketURL = "ws://" + cfg.BaseURL + "/chat/ws"
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
		if cfg.ReconnectMax < cfg.ReconnectMin {
			cfg.ReconnectMax = cfg.ReconnectMin
		}
	}
	if cfg.BackupKDFTime == 0 {
		cfg.BackupKDFTime = 3
	}
	if cfg.BackupKDFMemoryKiB == 0 {
		cfg.BackupKDFMemoryKiB = 64 * 1024
	}

	// Fill client defaults if empty
	if cfg.ClientDBPath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			cfg.ClientDBPath = filepath.Join(dir, "FromChat", "users")
		} else {
			home, _ := os.UserHomeDir()
			cfg.ClientDBPath = filepath.Join(home, ".fromchat", "users")
		}
	}

	return cfg
}
