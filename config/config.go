// Package config provides configuration management for diskfs.
// It handles loading and validating configuration from YAML/JSON files and environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server  ServerConfig  `koanf:"server"`
	Auth    AuthConfig    `koanf:"auth"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Disk    DiskConfig    `koanf:"disk"`
	S3      S3Config      `koanf:"s3"`
	Gateway GatewayConfig `koanf:"gateway"`
	Locks   LocksConfig   `koanf:"locks"`
}

// ServerConfig holds HTTP gateway configuration
type ServerConfig struct {
	ListenAddr        string        `koanf:"listen_addr"`
	CertFile          string        `koanf:"cert_file"` // TLS is enabled when both cert and key are set
	KeyFile           string        `koanf:"key_file"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	FileOpTimeout     time.Duration `koanf:"file_op_timeout"`
	MetadataOpTimeout time.Duration `koanf:"metadata_op_timeout"`
	MaxListEntries    int           `koanf:"max_list_entries"`
	MutationRateLimit float64       `koanf:"mutation_rate_limit"` // requests per second for mutating routes
	MutationBurst     int           `koanf:"mutation_burst"`

	LinkSecret          string        `koanf:"link_secret"` // download links are disabled when empty
	LinkTTL             time.Duration `koanf:"link_ttl"`
	LinkCleanupInterval time.Duration `koanf:"link_cleanup_interval"`
	LinkStorePath       string        `koanf:"link_store_path"` // sqlite file for consumed links
	LinkStoreDSN        string        `koanf:"link_store_dsn"`  // postgres DSN shared by several gateways
}

// AuthConfig holds gateway authentication configuration
type AuthConfig struct {
	APIKeys  []string `koanf:"api_keys"`
	ReadOnly bool     `koanf:"read_only"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr"` // empty serves /metrics on the gateway only
}

// Storage backends selectable with disk.backend
const (
	BackendYandex  = "yandex"
	BackendLocal   = "local"
	BackendMemory  = "memory"
	BackendS3      = "s3"
	BackendGateway = "gateway"
)

// DiskConfig holds remote drive API configuration
type DiskConfig struct {
	Backend               string        `koanf:"backend"`    // yandex, local, memory, s3 or gateway
	LocalRoot             string        `koanf:"local_root"` // root directory of the local backend
	BaseURL               string        `koanf:"base_url"`
	Token                 string        `koanf:"token"`
	PathPrefix            string        `koanf:"path_prefix"` // prefix the API puts in front of resource paths
	Timeout               time.Duration `koanf:"timeout"`
	MaxRetries            uint          `koanf:"max_retries"`
	RetryDelay            time.Duration `koanf:"retry_delay"`
	RequestsPerSecond     float64       `koanf:"requests_per_second"` // 0 disables client-side rate limiting
	Burst                 int           `koanf:"burst"`
	PageSize              int           `koanf:"page_size"`
	OperationPollInterval time.Duration `koanf:"operation_poll_interval"`
	OperationTimeout      time.Duration `koanf:"operation_timeout"`
	PermanentDelete       bool          `koanf:"permanent_delete"` // skip the drive's trash on delete
	SkipTLSVerify         bool          `koanf:"skip_tls_verify"`
	StrictExistence       bool          `koanf:"strict_existence"` // only not-found answers count as "does not exist"
}

// S3Config holds the bucket used by the s3 backend
type S3Config struct {
	Bucket               string `koanf:"bucket"`
	Region               string `koanf:"region"`
	Endpoint             string `koanf:"endpoint"` // set for MinIO and other S3 compatible stores
	AccessKey            string `koanf:"access_key"`
	SecretKey            string `koanf:"secret_key"`
	Prefix               string `koanf:"prefix"`
	DisableSSL           bool   `koanf:"disable_ssl"`
	PublicByDefault      bool   `koanf:"public_by_default"`
	ServerSideEncryption string `koanf:"server_side_encryption"`
	KMSKeyID             string `koanf:"kms_key_id"`
}

// GatewayConfig points the gateway backend at another diskfs gateway
type GatewayConfig struct {
	URL           string        `koanf:"url"`
	APIKey        string        `koanf:"api_key"`
	Timeout       time.Duration `koanf:"timeout"` // per request, 0 leaves it to the caller's context
	SkipTLSVerify bool          `koanf:"skip_tls_verify"`
}

// Lock manager backends
const (
	LocksLocal = "local"
	LocksRedis = "redis"
)

// LocksConfig selects how mutating operations are serialized
type LocksConfig struct {
	Backend       string        `koanf:"backend"` // local or redis
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	KeyPrefix     string        `koanf:"key_prefix"`
	TTL           time.Duration `koanf:"ttl"` // refreshed while the lock is held
}
