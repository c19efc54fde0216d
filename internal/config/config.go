package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/sharedcal/internal/storage"
)

// Storage backends.
const (
	StorageTypeFile   = "file"
	StorageTypeValkey = "valkey"
)

// Transports accepted by the serve command.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Config is the complete runtime configuration.
type Config struct {
	OAuth       OAuthConfig
	Calendar    CalendarConfig
	Storage     StorageConfig
	Idempotency IdempotencyConfig
	Server      ServerConfig
	Log         LogConfig
}

// OAuthConfig holds the Google OAuth client settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// CalendarConfig holds the Calendar API settings.
type CalendarConfig struct {
	BaseURL        string
	DefaultID      string
	RequestTimeout time.Duration
}

// StorageConfig selects and configures the storage backend. The *File
// fields are absolute paths for the file backend and document names for
// the Valkey backend.
type StorageConfig struct {
	Type            string
	Dir             string
	TokenFile       string
	IdempotencyFile string
	StateFile       string
	LockTimeout     time.Duration
	Valkey          storage.ValkeyConfig
}

// IdempotencyConfig holds the replay window.
type IdempotencyConfig struct {
	TTL time.Duration
}

// ServerConfig holds the serve command settings.
type ServerConfig struct {
	Transport      string
	HTTPAddr       string
	MetricsEnabled bool
	MetricsAddr    string
}

// LogConfig holds the log level ("debug", "info", "warn", "error") and
// format ("text", "json").
type LogConfig struct {
	Level  string
	Format string
}

// setting describes one configuration key.
type setting struct {
	key  string
	def  any
	flag string
	envs []string
}

var settings = []setting{
	{key: "oauth.client_id", def: "", flag: "google-client-id", envs: []string{"GOOGLE_OAUTH_CLIENT_ID"}},
	{key: "oauth.client_secret", def: "", flag: "google-client-secret", envs: []string{"GOOGLE_OAUTH_CLIENT_SECRET"}},
	{key: "oauth.redirect_url", def: "", flag: "google-redirect-url", envs: []string{"GOOGLE_OAUTH_REDIRECT_URI"}},
	{key: "oauth.auth_url", def: "https://accounts.google.com/o/oauth2/v2/auth"},
	{key: "oauth.token_url", def: "https://oauth2.googleapis.com/token"},

	{key: "calendar.base_url", def: "https://www.googleapis.com/calendar/v3"},
	{key: "calendar.default_id", def: "primary", flag: "calendar-id", envs: []string{"GOOGLE_CALENDAR_DEFAULT_ID"}},
	{key: "calendar.request_timeout", def: "30s"},

	{key: "storage.type", def: StorageTypeFile, flag: "storage-type"},
	{key: "storage.dir", def: "", flag: "storage-dir"},
	{key: "storage.token_file", def: "google-calendar-tokens.json"},
	{key: "storage.idempotency_file", def: "idempotency.json"},
	{key: "storage.state_file", def: "google-bootstrap-state.json"},
	{key: "storage.lock_timeout", def: "30s"},
	{key: "storage.valkey.url", def: "", flag: "valkey-url", envs: []string{"VALKEY_URL"}},
	{key: "storage.valkey.password", def: "", flag: "valkey-password", envs: []string{"VALKEY_PASSWORD"}},
	{key: "storage.valkey.tls_enabled", def: false, flag: "valkey-tls", envs: []string{"VALKEY_TLS_ENABLED"}},
	{key: "storage.valkey.tls_ca_file", def: "", envs: []string{"VALKEY_TLS_CA_FILE"}},
	{key: "storage.valkey.key_prefix", def: storage.DefaultValkeyKeyPrefix, flag: "valkey-key-prefix", envs: []string{"VALKEY_KEY_PREFIX"}},
	{key: "storage.valkey.db", def: 0, flag: "valkey-db", envs: []string{"VALKEY_DB"}},
	{key: "storage.valkey.lock_ttl", def: storage.DefaultValkeyLockTTL.String()},

	{key: "idempotency.ttl", def: "24h"},

	{key: "server.transport", def: TransportStdio, flag: "transport"},
	{key: "server.http_addr", def: ":8080", flag: "http-addr"},
	{key: "server.metrics_enabled", def: true, flag: "metrics-enabled", envs: []string{"METRICS_ENABLED"}},
	{key: "server.metrics_addr", def: ":9090", flag: "metrics-addr", envs: []string{"METRICS_ADDR"}},

	{key: "log.level", def: "info"},
	{key: "log.format", def: "text"},
}

// envName derives the prefixed environment variable for a key.
func envName(key string) string {
	return "SHAREDCAL_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
}

// Load reads the configuration. flags may be nil; any flag in it whose
// name matches a setting is bound to that setting. A "debug" flag set to
// true forces the debug log level.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHAREDCAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		_ = v.BindEnv(append([]string{s.key, envName(s.key)}, s.envs...)...)
		if flags == nil || s.flag == "" {
			continue
		}
		if f := flags.Lookup(s.flag); f != nil {
			if err := v.BindPFlag(s.key, f); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag --%s: %w", s.flag, err)
			}
		}
	}

	if flags != nil {
		if debug, err := flags.GetBool("debug"); err == nil && debug {
			v.Set("log.level", "debug")
		}
	}

	requestTimeout, err := durationSetting(v, "calendar.request_timeout")
	if err != nil {
		return Config{}, err
	}
	lockTimeout, err := durationSetting(v, "storage.lock_timeout")
	if err != nil {
		return Config{}, err
	}
	lockTTL, err := durationSetting(v, "storage.valkey.lock_ttl")
	if err != nil {
		return Config{}, err
	}
	idempotencyTTL, err := durationSetting(v, "idempotency.ttl")
	if err != nil {
		return Config{}, err
	}

	dir := strings.TrimSpace(v.GetString("storage.dir"))
	if dir == "" {
		dir = DefaultDataDir()
	}
	storageType := strings.ToLower(strings.TrimSpace(v.GetString("storage.type")))

	cfg := Config{
		OAuth: OAuthConfig{
			ClientID:     strings.TrimSpace(v.GetString("oauth.client_id")),
			ClientSecret: v.GetString("oauth.client_secret"),
			RedirectURL:  strings.TrimSpace(v.GetString("oauth.redirect_url")),
			AuthURL:      v.GetString("oauth.auth_url"),
			TokenURL:     v.GetString("oauth.token_url"),
		},
		Calendar: CalendarConfig{
			BaseURL:        strings.TrimRight(v.GetString("calendar.base_url"), "/"),
			DefaultID:      strings.TrimSpace(v.GetString("calendar.default_id")),
			RequestTimeout: requestTimeout,
		},
		Storage: StorageConfig{
			Type:            storageType,
			Dir:             dir,
			TokenFile:       v.GetString("storage.token_file"),
			IdempotencyFile: v.GetString("storage.idempotency_file"),
			StateFile:       v.GetString("storage.state_file"),
			LockTimeout:     lockTimeout,
			Valkey: storage.ValkeyConfig{
				URL:        v.GetString("storage.valkey.url"),
				Password:   v.GetString("storage.valkey.password"),
				TLSEnabled: v.GetBool("storage.valkey.tls_enabled"),
				TLSCAFile:  v.GetString("storage.valkey.tls_ca_file"),
				KeyPrefix:  v.GetString("storage.valkey.key_prefix"),
				DB:         v.GetInt("storage.valkey.db"),
				LockTTL:    lockTTL,
			},
		},
		Idempotency: IdempotencyConfig{TTL: idempotencyTTL},
		Server: ServerConfig{
			Transport:      v.GetString("server.transport"),
			HTTPAddr:       v.GetString("server.http_addr"),
			MetricsEnabled: v.GetBool("server.metrics_enabled"),
			MetricsAddr:    v.GetString("server.metrics_addr"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if storageType == StorageTypeFile {
		cfg.Storage.TokenFile = resolvePath(dir, cfg.Storage.TokenFile)
		cfg.Storage.IdempotencyFile = resolvePath(dir, cfg.Storage.IdempotencyFile)
		cfg.Storage.StateFile = resolvePath(dir, cfg.Storage.StateFile)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func durationSetting(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Storage.Type {
	case StorageTypeFile:
	case StorageTypeValkey:
		if err := c.Storage.Valkey.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid storage type %q, must be one of: file, valkey", c.Storage.Type)
	}

	if c.Storage.TokenFile == "" || c.Storage.IdempotencyFile == "" || c.Storage.StateFile == "" {
		return fmt.Errorf("storage token, idempotency and state document names must not be empty")
	}
	if c.Storage.LockTimeout < 0 {
		return fmt.Errorf("storage lock timeout must be non-negative, got %s", c.Storage.LockTimeout)
	}
	if c.Idempotency.TTL <= 0 {
		return fmt.Errorf("idempotency TTL must be positive, got %s", c.Idempotency.TTL)
	}
	if c.Calendar.RequestTimeout <= 0 {
		return fmt.Errorf("calendar request timeout must be positive, got %s", c.Calendar.RequestTimeout)
	}
	if c.Calendar.DefaultID == "" {
		return fmt.Errorf("default calendar ID must not be empty")
	}

	switch c.Server.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", c.Server.Transport)
	}
	return nil
}
