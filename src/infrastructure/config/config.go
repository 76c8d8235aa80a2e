package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	Environment   string        `mapstructure:"env"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GatewayConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	InstancesFile  string        `mapstructure:"instances_file"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DispatchConfig struct {
	Workers            int           `mapstructure:"workers"`
	QueueSize          int           `mapstructure:"queue_size"`
	PromoterSchedule   string        `mapstructure:"promoter_schedule"`
	LeaseTTL           time.Duration `mapstructure:"lease_ttl"`
	MinSendInterval    time.Duration `mapstructure:"min_send_interval"`
	AllocationAttempts int           `mapstructure:"allocation_attempts"`
	CreationMarkerTTL  time.Duration `mapstructure:"creation_marker_ttl"`
	SummaryCacheTTL    time.Duration `mapstructure:"summary_cache_ttl"`
}

type MediaConfig struct {
	Dir            string `mapstructure:"dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type JWTConfig struct {
	AccessSecret string `mapstructure:"access_secret"`
}

type WebhookConfig struct {
	CompletionURL string `mapstructure:"completion_url"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Media    MediaConfig    `mapstructure:"media"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.public_base_url", "http://localhost:8080")

	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("gateway.instances_file", "gateway-instances.yml")
	v.SetDefault("gateway.request_timeout", 20*time.Second)

	v.SetDefault("dispatch.workers", 10)
	v.SetDefault("dispatch.queue_size", 100)
	v.SetDefault("dispatch.promoter_schedule", "@every 5s")
	v.SetDefault("dispatch.lease_ttl", 2*time.Minute)
	v.SetDefault("dispatch.min_send_interval", time.Second)
	v.SetDefault("dispatch.allocation_attempts", 50)
	v.SetDefault("dispatch.creation_marker_ttl", time.Minute)
	v.SetDefault("dispatch.summary_cache_ttl", 5*time.Second)

	v.SetDefault("media.dir", "./media")
	v.SetDefault("media.max_upload_bytes", 5<<20)
}

// Load reads configuration from an optional .env file, environment variables and an
// optional config.yaml. Environment keys use underscores: DB_HOST, DISPATCH_WORKERS, ...
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows; bind the ones without defaults.
	for _, key := range []string{"db.host", "db.port", "db.user", "db.password", "db.name",
		"redis.password", "gateway.base_url", "jwt.access_secret", "webhook.completion_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns an error naming every missing required setting
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.Database.Port == "" {
		missing = append(missing, "DB_PORT")
	}
	if c.Database.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.Database.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.Gateway.BaseURL == "" {
		missing = append(missing, "GATEWAY_BASE_URL")
	}
	if c.JWT.AccessSecret == "" {
		missing = append(missing, "JWT_ACCESS_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported DB_DRIVER %q, expected mysql or postgres", c.Database.Driver)
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("DISPATCH_WORKERS must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}
