package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type CameraConfig struct {
	// Username the camera presents in its Digest header. Only the
	// username is checked; see internal/auth.
	Username string
	Model    string
}

type StorageConfig struct {
	ImagesDir string
}

type NotifierConfig struct {
	TelegramToken string
	// Telegram chat IDs that receive detection notifications.
	Recipients          []int64
	PollInterval        time.Duration
	CycleTimeout        time.Duration
	SendTimeout         time.Duration
	ConfidenceThreshold float64
}

type APIConfig struct {
	JWTSecret string
}

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Camera   CameraConfig
	Storage  StorageConfig
	Notifier NotifierConfig
	API      APIConfig
	LogLevel string
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7070)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "anpr")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "anpr")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("camera.username", "")
	v.SetDefault("camera.model", "dahua-itc")
	v.SetDefault("storage.images_dir", "vehicle_images")
	v.SetDefault("notifier.telegram_token", "")
	v.SetDefault("notifier.recipients", []int64{})
	v.SetDefault("notifier.poll_interval", 15*time.Second)
	v.SetDefault("notifier.cycle_timeout", 5*time.Minute)
	v.SetDefault("notifier.send_timeout", 30*time.Second)
	v.SetDefault("notifier.confidence_threshold", 0.7)
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("log_level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/anpr-gate-service")

	v.SetEnvPrefix("ANPR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			Name:     v.GetString("database.name"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Camera: CameraConfig{
			Username: v.GetString("camera.username"),
			Model:    v.GetString("camera.model"),
		},
		Storage: StorageConfig{
			ImagesDir: v.GetString("storage.images_dir"),
		},
		Notifier: NotifierConfig{
			TelegramToken:       v.GetString("notifier.telegram_token"),
			PollInterval:        v.GetDuration("notifier.poll_interval"),
			CycleTimeout:        v.GetDuration("notifier.cycle_timeout"),
			SendTimeout:         v.GetDuration("notifier.send_timeout"),
			ConfidenceThreshold: v.GetFloat64("notifier.confidence_threshold"),
		},
		API: APIConfig{
			JWTSecret: v.GetString("api.jwt_secret"),
		},
		LogLevel: v.GetString("log_level"),
	}

	for _, raw := range v.GetStringSlice("notifier.recipients") {
		id, err := parseChatID(raw)
		if err != nil {
			return nil, fmt.Errorf("notifier.recipients: %w", err)
		}
		cfg.Notifier.Recipients = append(cfg.Notifier.Recipients, id)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Camera.Username == "" {
		return fmt.Errorf("camera.username is required")
	}
	if c.Notifier.ConfidenceThreshold < 0 || c.Notifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("notifier.confidence_threshold must be within [0,1]")
	}
	if c.Notifier.PollInterval <= 0 {
		return fmt.Errorf("notifier.poll_interval must be positive")
	}
	return nil
}

func parseChatID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q", raw)
	}
	return id, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}
