// Package config loads the server configuration from defaults, an
// optional config file, and MOLTHUB_-prefixed environment variables.
package config

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	KeyID     string `mapstructure:"key_id"`
	AccessKey string `mapstructure:"access_key"`
	Timeout   string `mapstructure:"timeout"`
}

type PersistenceConfig struct {
	// Type selects the blob backend: "filesystem" or "s3".
	Type       string   `mapstructure:"type"`
	StorageDir string   `mapstructure:"storage_dir"`
	S3         S3Config `mapstructure:"s3"`
}

type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "openai" or "local".
	Provider  string `mapstructure:"provider"`
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	Timeout   string `mapstructure:"timeout"`
}

type NotifyConfig struct {
	// PublishWebhookURL, when set, receives a POST after every
	// committed publish.
	PublishWebhookURL string `mapstructure:"publish_webhook_url"`
}

type AppConfig struct {
	Port                  int    `mapstructure:"port"`
	ProductionEnvironment bool   `mapstructure:"production_environment"`
	LogLevel              string `mapstructure:"log_level"`

	Database    DatabaseConfig    `mapstructure:"database"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Embeddings  EmbeddingsConfig  `mapstructure:"embeddings"`
	Notify      NotifyConfig      `mapstructure:"notify"`
}

// Load reads configuration for the named app. The config file is
// optional; env vars like MOLTHUB_DATABASE_HOST override it.
func Load(appName string) (*AppConfig, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("production_environment", false)
	v.SetDefault("log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "molthub")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "molthub")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("persistence.type", "filesystem")
	v.SetDefault("persistence.storage_dir", "./data/blobs")
	v.SetDefault("persistence.s3.timeout", "30s")

	v.SetDefault("embeddings.provider", "local")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.dimension", 1536)
	v.SetDefault("embeddings.timeout", "15s")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/" + appName)

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Debug().Msg("no config file found, using defaults and environment")
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
