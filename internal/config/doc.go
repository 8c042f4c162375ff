// Package config handles configuration loading, saving, and schema definition.
package config

// Config is the top-level telegate configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Vault    VaultConfig    `json:"vault"`
	Redis    RedisConfig    `json:"redis"`
	Fanout   FanoutConfig   `json:"fanout"`
	Bridge   BridgeConfig   `json:"bridge"`
	Provider ProviderConfig `json:"provider"`
	Ingest   IngestConfig   `json:"ingest"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`    // bearer token for /api routes
	PublicURL string `json:"publicUrl,omitempty"` // externally reachable base URL for webhooks
}

// StorageConfig holds persistence engine settings.
type StorageConfig struct {
	Path string `json:"path,omitempty"` // SQLite file; ":memory:" for tests
}

// VaultConfig holds credential encryption settings.
type VaultConfig struct {
	Key string `json:"key,omitempty"` // base64-encoded 32-byte key
}

// RedisConfig holds the optional Redis cache settings. Empty URL disables
// the cache; the system degrades gracefully without it.
type RedisConfig struct {
	URL      string `json:"url,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// FanoutConfig holds notification pub/sub settings. Empty URL keeps the
// fanout in-process only.
type FanoutConfig struct {
	AMQPURL  string `json:"amqpUrl,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// BridgeConfig holds the MTProto bridge gateway settings for account
// sessions.
type BridgeConfig struct {
	URL string `json:"url,omitempty"` // ws:// or wss:// endpoint
}

// ProviderConfig holds Bot API client settings.
type ProviderConfig struct {
	APIBase       string `json:"apiBase,omitempty"` // override for tests
	ProbeTimeoutS int    `json:"probeTimeoutS,omitempty"`
	SendTimeoutS  int    `json:"sendTimeoutS,omitempty"`
}

// IngestConfig holds pipeline sizing.
type IngestConfig struct {
	QueueSize    int `json:"queueSize,omitempty"`    // per-session event queue depth
	StoreWorkers int `json:"storeWorkers,omitempty"` // bounded pool for blocking writes
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 18890,
		},
		Storage: StorageConfig{
			Path: "telegate.db",
		},
		Fanout: FanoutConfig{
			Exchange: "telegate.notifications",
		},
		Provider: ProviderConfig{
			APIBase:       "https://api.telegram.org",
			ProbeTimeoutS: 10,
			SendTimeoutS:  15,
		},
		Ingest: IngestConfig{
			QueueSize:    256,
			StoreWorkers: 8,
		},
	}
}
