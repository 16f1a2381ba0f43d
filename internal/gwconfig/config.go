// Package gwconfig loads the gateway's runtime configuration: environment
// variables (optionally seeded from a .env file) for the ambient knobs, and
// a separate YAML file for the per-chain API-pool topology.
package gwconfig

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"elpp-gateway/pkg/utils"
)

// Config holds the gateway's environment-derived settings.
type Config struct {
	Port                     int    `mapstructure:"elpp_port"`
	BindAddr                 string `mapstructure:"elpp_bind_addr"`
	DeviceTTLSeconds         int    `mapstructure:"device_ttl_seconds"`
	RequestDeadlineSeconds   int    `mapstructure:"request_deadline_seconds"`
	HTTPClientTimeoutSeconds int    `mapstructure:"http_client_timeout_seconds"`
	TaposPoolFile            string `mapstructure:"tapos_pool_file"`
}

// Defaults per the external-interface and concurrency sections: ELPP port 8,
// 300s device-state TTL, 30s request deadline, 20s outbound HTTP timeout.
const (
	defaultPort                     = 8
	defaultBindAddr                 = "0.0.0.0"
	defaultDeviceTTLSeconds         = 300
	defaultRequestDeadlineSeconds   = 30
	defaultHTTPClientTimeoutSeconds = 20
	defaultTaposPoolFile            = "chains.yaml"
)

// Load reads .env (if present) then the environment, merging over the
// gateway's defaults. Unlike the chain-pool file, this configuration is
// viper-backed so it can later grow additional env-sourced knobs without a
// loader rewrite.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, utils.Wrap(err, "loading .env")
	}

	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetDefault("elpp_port", defaultPort)
	v.SetDefault("elpp_bind_addr", defaultBindAddr)
	v.SetDefault("device_ttl_seconds", defaultDeviceTTLSeconds)
	v.SetDefault("request_deadline_seconds", defaultRequestDeadlineSeconds)
	v.SetDefault("http_client_timeout_seconds", defaultHTTPClientTimeoutSeconds)
	v.SetDefault("tapos_pool_file", defaultTaposPoolFile)

	for _, key := range []string{
		"ELPP_PORT", "ELPP_BIND_ADDR", "DEVICE_TTL_SECONDS",
		"REQUEST_DEADLINE_SECONDS", "HTTP_CLIENT_TIMEOUT_SECONDS", "TAPOS_POOL_FILE",
	} {
		if err := v.BindEnv(normalizeKey(key), key); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("bind env %s", key))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

func normalizeKey(envKey string) string {
	out := make([]byte, len(envKey))
	for i := 0; i < len(envKey); i++ {
		c := envKey[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
