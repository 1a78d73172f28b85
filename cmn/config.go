package cmn

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/viper"
)

// Config is the process-wide set of recognized options.
type Config struct {
	MetadataEndpoints []string `mapstructure:"metadata_endpoints"`
	MetadataAccessKey string   `mapstructure:"metadata_access_key"`
	MetadataSecretKey string   `mapstructure:"metadata_secret_key"`
	MetadataBucket    string   `mapstructure:"metadata_bucket"`
	MetadataSchema    string   `mapstructure:"metadata_schema"`

	ObjectEndpointURL string `mapstructure:"object_endpoint_url"`
	ObjectAccessKey   string `mapstructure:"object_access_key"`
	ObjectSecretKey   string `mapstructure:"object_secret_key"`
	ObjectBucket      string `mapstructure:"object_bucket"`
	ObjectUseSSL      bool   `mapstructure:"object_use_ssl"`

	TamsStoragePath        string `mapstructure:"tams_storage_path"`
	PresignTTLSeconds      int    `mapstructure:"presign_ttl_seconds"`
	AsyncDeleteThreshold   int    `mapstructure:"async_delete_threshold"`
	DefaultStorageBackendID string `mapstructure:"default_storage_backend_id"`

	HTTPListenAddr string `mapstructure:"http_listen_addr"`
	LogLevel       string `mapstructure:"log_level"`
}

func defaults() Config {
	return Config{
		PresignTTLSeconds:    3600,
		AsyncDeleteThreshold: 500,
		TamsStoragePath:      "tams",
		HTTPListenAddr:       ":8080",
		LogLevel:             "info",
	}
}

// gcOwner is the single Global Config Owner instance: an atomic holder so
// every goroutine reads a consistent, immutable Config snapshot without a
// lock on the hot path.
type gcOwner struct {
	v atomic.Value
}

func (o *gcOwner) Get() *Config {
	c, _ := o.v.Load().(*Config)
	if c == nil {
		d := defaults()
		return &d
	}
	return c
}

func (o *gcOwner) put(c *Config) { o.v.Store(c) }

// GCO is the package-level config owner; every component reads through it.
var GCO = &gcOwner{}

// LoadConfig reads configFile (YAML) layered over env vars prefixed TAMS_
// and process defaults, then installs the result into GCO.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("presign_ttl_seconds", d.PresignTTLSeconds)
	v.SetDefault("async_delete_threshold", d.AsyncDeleteThreshold)
	v.SetDefault("tams_storage_path", d.TamsStoragePath)
	v.SetDefault("http_listen_addr", d.HTTPListenAddr)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("TAMS")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %q: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if len(cfg.MetadataEndpoints) == 0 {
		if ep := v.GetString("metadata_endpoint"); ep != "" {
			cfg.MetadataEndpoints = []string{ep}
		}
	}
	GCO.put(&cfg)
	return &cfg, nil
}
