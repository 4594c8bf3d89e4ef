package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type MaterializerConfig struct {
	Container  string        `mapstructure:"container"`
	Bin        string        `mapstructure:"bin"`
	ProjectDir string        `mapstructure:"project_dir"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type IntrospectConfig struct {
	MetadataCacheTTL time.Duration `mapstructure:"metadata_cache_ttl"`
}

type Config struct {
	DatabaseURL  string             `mapstructure:"database_url"`
	ServerPort   string             `mapstructure:"server_port"`
	CORSOrigin   string             `mapstructure:"cors_origin"`
	Materializer MaterializerConfig `mapstructure:"materializer"`
	Introspect   IntrospectConfig   `mapstructure:"introspect"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}
	if config.Materializer.Container == "" {
		config.Materializer.Container = "docc-dbt"
	}
	if config.Materializer.Bin == "" {
		config.Materializer.Bin = "dbt"
	}
	if config.Materializer.ProjectDir == "" {
		config.Materializer.ProjectDir = "/usr/app/dbt"
	}
	if config.Materializer.Timeout == 0 {
		config.Materializer.Timeout = 5 * time.Minute
	}
	if config.Introspect.MetadataCacheTTL == 0 {
		config.Introspect.MetadataCacheTTL = 5 * time.Minute
	}

	return &config
}
