package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type RemoteKind string

const (
	RemoteFirebase RemoteKind = "firebase"
	RemoteESP32    RemoteKind = "esp32"
)

type Config struct {
	DatabaseURL    string        `env:"DATABASE_URL"`
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"INFO"`
	RetentionDays  int           `env:"RETENTION_DAYS" envDefault:"30"`
	WorkerPoolSize int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	SettingsPath   string        `env:"SETTINGS_PATH"`
	RemoteCfg      RemoteConfig
	MqttCfg        MqttConfig `envPrefix:"MQTT_"`
	AuthCfg        AuthConfig
}

type RemoteConfig struct {
	Kind         RemoteKind    `env:"REMOTE_KIND" envDefault:"firebase"`
	FirebaseURL  string        `env:"FIREBASE_URL"`
	FirebaseAuth string        `env:"FIREBASE_AUTH"`
	FirebasePath string        `env:"FIREBASE_PATH" envDefault:"sensor_readings"`
	Timeout      time.Duration `env:"REMOTE_TIMEOUT" envDefault:"10s"`
}

type MqttConfig struct {
	Host       string `env:"HOST"`
	Username   string `env:"USER"`
	Password   string `env:"PASS"`
	DeviceName string `env:"DEVICE_NAME" envDefault:"Sensor Rig"`
}

type AuthConfig struct {
	PasswordHash string        `env:"API_PASSWORD_HASH"`
	JWTSecret    string        `env:"JWT_SECRET"`
	TokenTTL     time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

// Load reads the process configuration from the environment. Overrides are
// applied before validation, e.g. values given as command line flags.
func Load(overrides ...func(*Config)) (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.RemoteCfg.Kind {
	case RemoteFirebase:
		if c.RemoteCfg.FirebaseURL == "" {
			return fmt.Errorf("FIREBASE_URL is required when REMOTE_KIND=%s", RemoteFirebase)
		}
	case RemoteESP32:
	default:
		return fmt.Errorf("unsupported REMOTE_KIND %q", c.RemoteCfg.Kind)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = "sqlite://" + filepath.Join(DataDir(), DBName)
	}
	if c.SettingsPath == "" {
		c.SettingsPath = DefaultSettingsPath()
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	return nil
}

func (c *Config) RetentionHorizon() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
