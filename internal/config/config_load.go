package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.DataDir = ExpandHome(cfg.DataDir)
	cfg.Team.TemplateDir = ExpandHome(cfg.Team.TemplateDir)
	cfg.Team.WorkspaceDir = ExpandHome(cfg.Team.WorkspaceDir)
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GOSWARM_DATA_DIR", &c.DataDir)

	envStr("GOSWARM_PRIMARY_BASE_URL", &c.Providers.Primary.BaseURL)
	envStr("GOSWARM_PRIMARY_API_KEY", &c.Providers.Primary.APIKey)
	envStr("GOSWARM_PRIMARY_MODEL", &c.Providers.Primary.Model)
	envStr("GOSWARM_SECONDARY_BASE_URL", &c.Providers.Secondary.BaseURL)
	envStr("GOSWARM_SECONDARY_API_KEY", &c.Providers.Secondary.APIKey)
	envStr("GOSWARM_SECONDARY_MODEL", &c.Providers.Secondary.Model)

	envStr("GOSWARM_DASHBOARD_ADDR", &c.Dashboard.Addr)
	if v := os.Getenv("GOSWARM_DASHBOARD_ENABLED"); v != "" {
		c.Dashboard.Enabled = v == "true" || v == "1"
	}

	envStr("GOSWARM_TELEMETRY_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	if v := os.Getenv("GOSWARM_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("GOSWARM_ASSIST_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Router.AssistTimeoutMS = ms
		}
	}
	if v := os.Getenv("GOSWARM_HEARTBEAT_TIMEOUT_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			c.Liveness.HeartbeatTimeoutS = s
		}
	}
}
