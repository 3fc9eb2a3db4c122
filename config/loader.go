package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by the loader
const EnvPrefix = "DISKFS_"

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration from multiple sources with a specific config file:
// 1. Environment variables (highest priority)
// 2. Specified config file or default config files
// 3. Defaults (lowest priority)
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	// Load default configuration first
	defaultCfg := DefaultAppConfig()
	if err := k.Load(structs.Provider(defaultCfg, "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := loadFile(k, configFilePath); err != nil {
			return AppConfig{}, err
		}
	} else {
		for _, configFile := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := loadFile(k, configFile); err != nil {
					return AppConfig{}, err
				}
				break
			}
		}
	}

	// DISKFS_DISK_BASE_URL -> disk.base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		parser = yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps an environment variable name to a config key. Only the first
// underscore after the prefix separates the section from the field name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + field
}

// validateConfig validates the settings every command needs
func validateConfig(cfg *AppConfig) error {
	switch cfg.Disk.Backend {
	case BackendYandex:
	case BackendLocal:
		if cfg.Disk.LocalRoot == "" {
			return fmt.Errorf("disk.local_root is required for the local backend")
		}
	case BackendMemory:
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	case BackendGateway:
		if cfg.Gateway.URL == "" {
			return fmt.Errorf("gateway.url is required for the gateway backend")
		}
	default:
		return fmt.Errorf("disk.backend must be one of %s, %s, %s, %s, %s",
			BackendYandex, BackendLocal, BackendMemory, BackendS3, BackendGateway)
	}

	switch cfg.Locks.Backend {
	case LocksLocal:
	case LocksRedis:
		if cfg.Locks.RedisAddr == "" {
			return fmt.Errorf("locks.redis_addr is required for redis locks")
		}
		if cfg.Locks.TTL <= 0 {
			return fmt.Errorf("locks.ttl must be positive")
		}
	default:
		return fmt.Errorf("locks.backend must be one of %s, %s", LocksLocal, LocksRedis)
	}

	if cfg.Disk.BaseURL == "" {
		return fmt.Errorf("disk.base_url is required")
	}

	u, err := url.Parse(cfg.Disk.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("disk.base_url must be an absolute URL")
	}

	if cfg.Disk.PageSize <= 0 {
		return fmt.Errorf("disk.page_size must be positive")
	}

	if cfg.Disk.RequestsPerSecond < 0 {
		return fmt.Errorf("disk.requests_per_second must not be negative")
	}

	return nil
}

// ValidateServer validates the settings required to run the HTTP gateway
func ValidateServer(cfg *AppConfig) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if (cfg.Server.CertFile == "") != (cfg.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file must be set together")
	}

	if len(cfg.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must contain at least one key")
	}

	for _, key := range cfg.Auth.APIKeys {
		if key == DefaultAPIKey {
			return fmt.Errorf("auth.api_keys must not use the default value")
		}
	}

	if cfg.Server.LinkSecret != "" && (cfg.Server.LinkTTL <= 0 || cfg.Server.LinkCleanupInterval <= 0) {
		return fmt.Errorf("server.link_ttl and server.link_cleanup_interval must be positive when links are enabled")
	}

	if cfg.Server.LinkStorePath != "" && cfg.Server.LinkStoreDSN != "" {
		return fmt.Errorf("server.link_store_path and server.link_store_dsn are mutually exclusive")
	}

	if cfg.Disk.Backend == BackendYandex && cfg.Disk.Token == "" {
		return fmt.Errorf("disk.token is required")
	}

	return nil
}
