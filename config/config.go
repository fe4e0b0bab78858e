// Package config loads the portal auth settings from a config file and
// PORTAL_ prefixed environment variables.
package config

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-portal-auth"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	SecureCookie bool
	CSRF         bool
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
	// Dir is used when Endpoint is empty
	Dir       string
	URLPrefix string
}

type SecurityConfig struct {
	SigningKey        string
	SessionCookieName string
	SessionTTL        time.Duration
	ResetTokenTTL     time.Duration
	BcryptCost        int
	HashidAccountIDs  bool
}

type JobsConfig struct {
	PurgeSchedule string
	// SweepSchedule evicts idle in memory sessions
	SweepSchedule string
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	WebsiteName      string
	ResetURLTemplate string
	HTTP             HTTPConfig
	Database         DatabaseConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Jobs             JobsConfig
}

var _ auth.Config = (*AppConfig)(nil)

func (c *AppConfig) GetSigningKey() string           { return c.Security.SigningKey }
func (c *AppConfig) GetSessionCookieName() string    { return c.Security.SessionCookieName }
func (c *AppConfig) GetSessionTTL() time.Duration    { return c.Security.SessionTTL }
func (c *AppConfig) GetResetTokenTTL() time.Duration { return c.Security.ResetTokenTTL }
func (c *AppConfig) GetWebsiteName() string          { return c.WebsiteName }
func (c *AppConfig) GetResetURLTemplate() string     { return c.ResetURLTemplate }

// Validate reports settings that make the service unusable.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Security.SigningKey) == "" {
		return goerrors.New("security.signingkey is required", goerrors.CategoryValidation)
	}
	if c.Security.ResetTokenTTL < 0 {
		return goerrors.New("security.resettokenttl must not be negative", goerrors.CategoryValidation)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return goerrors.New("database.dsn is required", goerrors.CategoryValidation)
	}
	return nil
}

// Load reads config.yaml from path (or the default search paths when path
// is empty) and overlays the environment.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file")
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode config")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "info")
	v.SetDefault("websitename", "Portal")
	v.SetDefault("reseturltemplate", "/reset/{{ token }}")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.securecookie", false)
	v.SetDefault("http.csrf", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:portal.db?cache=shared")
	v.SetDefault("database.maxopen", 30)
	v.SetDefault("database.maxidle", 10)
	v.SetDefault("database.connmaxlifetime", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "portal:session:")

	v.SetDefault("storage.bucket", "portal-avatars")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.dir", "./media")
	v.SetDefault("storage.urlprefix", "/media")

	v.SetDefault("security.sessioncookiename", auth.DefaultSessionCookieName)
	v.SetDefault("security.sessionttl", "168h")
	v.SetDefault("security.resettokenttl", auth.DefaultResetTokenTTL.String())
	v.SetDefault("security.bcryptcost", 10)
	v.SetDefault("security.hashidaccountids", false)

	v.SetDefault("jobs.purgeschedule", "0 0 3 * * *")
	v.SetDefault("jobs.sweepschedule", "0 */10 * * * *")
}
