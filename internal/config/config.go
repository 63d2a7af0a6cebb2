// Package config resolves the runtime settings of the kolfeed commands from
// flags, the environment and optional .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StorageKind selects the key-value backend holding the feed configuration.
type StorageKind string

const (
	// StorageSQLite keeps the configuration in a SQLite database shared across processes.
	StorageSQLite StorageKind = "sqlite"
	// StorageMemory keeps the configuration in process memory only.
	StorageMemory StorageKind = "memory"
)

const (
	// EnvPrefix prefixes every environment variable read through viper.
	EnvPrefix = "KOLFEED"

	// KeyHost is the interface the HTTP server binds to.
	KeyHost = "host"
	// KeyPort is the TCP port of the HTTP server.
	KeyPort = "port"
	// KeyStorage selects the storage backend, see StorageKind.
	KeyStorage = "storage"
	// KeyDatabasePath is the SQLite database file.
	KeyDatabasePath = "db-path"
	// KeyProfileBaseURL is the site profile pages are fetched from.
	KeyProfileBaseURL = "profile-base-url"
	// KeyProfileConcurrency bounds concurrent profile lookups.
	KeyProfileConcurrency = "profile-concurrency"
	// KeyProfileTimeout bounds a single profile lookup.
	KeyProfileTimeout = "profile-timeout"
	// KeyChromePath is the Chrome executable used to render profile pages.
	KeyChromePath = "chrome-path"
	// KeyRenderProfiles renders profile pages in headless Chrome instead of plain HTTP.
	KeyRenderProfiles = "render-profiles"
	// KeyLogLevel is the minimum zap level that is logged.
	KeyLogLevel = "log-level"

	// DefaultHost keeps the server on the loopback interface.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the HTTP port used when none is configured.
	DefaultPort = 8080
	// DefaultStorage persists to SQLite.
	DefaultStorage = StorageSQLite
	// DefaultDatabasePath is relative to the working directory.
	DefaultDatabasePath = "kolfeed.db"
	// DefaultProfileBaseURL is the public profile site.
	DefaultProfileBaseURL = "https://x.com"
	// DefaultProfileConcurrency is the number of parallel profile lookups.
	DefaultProfileConcurrency = 4
	// DefaultProfileTimeout bounds a single profile lookup.
	DefaultProfileTimeout = 20 * time.Second
	// DefaultLogLevel logs informational messages and above.
	DefaultLogLevel = "info"

	errMessageUnknownStorage  = "unknown storage backend"
	errMessageInvalidPort     = "port must be between 1 and 65535"
	errMessageMissingDatabase = "sqlite storage requires a database path"
	errMessageInvalidLogLevel = "invalid log level"
	errMessageLoadEnvFile     = "load env file"
	errMessageBuildLogger     = "build logger"

	envKeySeparator = "-"
	envKeyJoiner    = "_"
	addressFormat   = "%s:%d"
)

var (
	// ErrUnknownStorage reports a storage value other than sqlite or memory.
	ErrUnknownStorage = errors.New(errMessageUnknownStorage)
	// ErrInvalidPort reports a port outside the TCP range.
	ErrInvalidPort = errors.New(errMessageInvalidPort)
	// ErrMissingDatabasePath reports sqlite storage without a database file.
	ErrMissingDatabasePath = errors.New(errMessageMissingDatabase)
)

// Config holds the resolved runtime settings.
type Config struct {
	Host               string
	Port               int
	Storage            StorageKind
	DatabasePath       string
	ProfileBaseURL     string
	ProfileConcurrency int
	ProfileTimeout     time.Duration
	ChromePath         string
	RenderProfiles     bool
	LogLevel           string
}

// Address returns the listen address of the HTTP server.
func (configuration Config) Address() string {
	return fmt.Sprintf(addressFormat, configuration.Host, configuration.Port)
}

// LoadEnvFiles loads variables from .env files into the process environment
// without overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%s %s: %w", errMessageLoadEnvFile, path, err)
		}
	}
	return nil
}

// ConfigureEnvironment makes v read KOLFEED_* variables, mapping "-" in keys to "_".
func ConfigureEnvironment(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(envKeySeparator, envKeyJoiner))
	v.AutomaticEnv()
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHost, DefaultHost)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyStorage, string(DefaultStorage))
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath)
	v.SetDefault(KeyProfileBaseURL, DefaultProfileBaseURL)
	v.SetDefault(KeyProfileConcurrency, DefaultProfileConcurrency)
	v.SetDefault(KeyProfileTimeout, DefaultProfileTimeout)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
}

// FromViper reads and validates the settings stored in v.
func FromViper(v *viper.Viper) (Config, error) {
	configuration := Config{
		Host:               strings.TrimSpace(v.GetString(KeyHost)),
		Port:               v.GetInt(KeyPort),
		Storage:            StorageKind(strings.ToLower(strings.TrimSpace(v.GetString(KeyStorage)))),
		DatabasePath:       strings.TrimSpace(v.GetString(KeyDatabasePath)),
		ProfileBaseURL:     strings.TrimSpace(v.GetString(KeyProfileBaseURL)),
		ProfileConcurrency: v.GetInt(KeyProfileConcurrency),
		ProfileTimeout:     v.GetDuration(KeyProfileTimeout),
		ChromePath:         strings.TrimSpace(v.GetString(KeyChromePath)),
		RenderProfiles:     v.GetBool(KeyRenderProfiles),
		LogLevel:           strings.TrimSpace(v.GetString(KeyLogLevel)),
	}
	if configuration.Port < 1 || configuration.Port > 65535 {
		return Config{}, ErrInvalidPort
	}
	switch configuration.Storage {
	case StorageSQLite:
		if configuration.DatabasePath == "" {
			return Config{}, ErrMissingDatabasePath
		}
	case StorageMemory:
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownStorage, configuration.Storage)
	}
	if _, err := zapcore.ParseLevel(configuration.LogLevel); err != nil {
		return Config{}, fmt.Errorf("%s: %w", errMessageInvalidLogLevel, err)
	}
	return configuration, nil
}

// NewLogger builds a production logger at the configured level.
func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageInvalidLogLevel, err)
	}
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(parsedLevel)
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageBuildLogger, err)
	}
	return logger, nil
}
