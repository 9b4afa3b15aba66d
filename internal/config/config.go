package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the bridge server.
type Config struct {
	Port        int
	Version     string
	EventBuffer int
	PolicyPath  string
	Telemetry   TelemetryConfig
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:        envInt("FORGE_BRIDGE_PORT", 8717),
		Version:     envStr("FORGE_BRIDGE_VERSION", "0.4.0"),
		EventBuffer: envInt("FORGE_BRIDGE_EVENT_BUFFER", 256),
		PolicyPath:  envStr("FORGE_BRIDGE_POLICY_PATH", ""),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "forgebridge"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
