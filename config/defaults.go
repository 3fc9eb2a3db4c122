package config

import "time"

// DefaultAPIKey is the placeholder API key that must be replaced before serving
const DefaultAPIKey = "change-me-api-key"

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:        ":8080",
			CertFile:          "",
			KeyFile:           "",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      10 * time.Minute, // uploads and downloads stream through the gateway
			FileOpTimeout:     10 * time.Minute,
			MetadataOpTimeout: 30 * time.Second,
			MaxListEntries:    10000,
			MutationRateLimit: 20,
			MutationBurst:     5,

			LinkSecret:          "",
			LinkTTL:             15 * time.Minute,
			LinkCleanupInterval: 5 * time.Minute,
			LinkStorePath:       "",
			LinkStoreDSN:        "",
		},
		Auth: AuthConfig{
			APIKeys:  []string{DefaultAPIKey},
			ReadOnly: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			ListenAddr: "",
		},
		Disk: DiskConfig{
			Backend:               BackendYandex,
			LocalRoot:             "./data",
			BaseURL:               "https://cloud-api.yandex.net",
			Token:                 "",
			PathPrefix:            "disk:",
			Timeout:               30 * time.Second,
			MaxRetries:            3,
			RetryDelay:            200 * time.Millisecond,
			RequestsPerSecond:     10,
			Burst:                 10,
			PageSize:              1000,
			OperationPollInterval: 500 * time.Millisecond,
			OperationTimeout:      5 * time.Minute,
			PermanentDelete:       false,
			SkipTLSVerify:         false,
			StrictExistence:       false,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Gateway: GatewayConfig{
			Timeout: 0,
		},
		Locks: LocksConfig{
			Backend:   LocksLocal,
			KeyPrefix: "diskfs:lock:",
			TTL:       30 * time.Second,
		},
	}
}
