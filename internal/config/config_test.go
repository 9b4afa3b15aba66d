package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != 8717 {
		t.Errorf("Port = %d, want 8717", cfg.Port)
	}
	if cfg.EventBuffer != 256 {
		t.Errorf("EventBuffer = %d, want 256", cfg.EventBuffer)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("telemetry should default to enabled")
	}
	if cfg.Telemetry.ServiceName != "forgebridge" {
		t.Errorf("ServiceName = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FORGE_BRIDGE_PORT", "9000")
	t.Setenv("FORGE_BRIDGE_POLICY_PATH", "/etc/forge/policy.yaml")
	t.Setenv("OTEL_ENABLED", "false")

	cfg := Load()
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.PolicyPath != "/etc/forge/policy.yaml" {
		t.Errorf("PolicyPath = %q", cfg.PolicyPath)
	}
	if cfg.Telemetry.Enabled {
		t.Error("OTEL_ENABLED=false should disable telemetry")
	}
}

func TestEnvHelpersIgnoreMalformedValues(t *testing.T) {
	t.Setenv("FORGE_BRIDGE_PORT", "not-a-number")
	t.Setenv("OTEL_ENABLED", "maybe")

	cfg := Load()
	if cfg.Port != 8717 {
		t.Errorf("Port = %d, want the default", cfg.Port)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("malformed bool should keep the default")
	}
}
