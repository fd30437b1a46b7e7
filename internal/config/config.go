// Package config defines the goswarm configuration document and its
// loading rules: JSON5 file, then environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
	"github.com/nextlevelbuilder/goswarm/internal/telemetry"
)

// Config is the root configuration document.
type Config struct {
	DataDir   string           `json:"data_dir,omitempty"`
	Models    ModelsConfig     `json:"models,omitempty"`
	Providers ProvidersConfig  `json:"providers,omitempty"`
	Router    RouterConfig     `json:"router,omitempty"`
	Team      TeamConfig       `json:"team,omitempty"`
	Liveness  LivenessConfig   `json:"liveness,omitempty"`
	Dashboard DashboardConfig  `json:"dashboard,omitempty"`
	Telemetry telemetry.Config `json:"telemetry,omitempty"`
}

// ModelsConfig maps each routing tier to a backend model name.
type ModelsConfig struct {
	Simple    string `json:"simple,omitempty"`
	Medium    string `json:"medium,omitempty"`
	Complex   string `json:"complex,omitempty"`
	Coding    string `json:"coding,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// TierMap renders the per-tier model mapping the router consumes.
func (m ModelsConfig) TierMap() map[store.Tier]string {
	return map[store.Tier]string{
		store.TierSimple:    m.Simple,
		store.TierMedium:    m.Medium,
		store.TierComplex:   m.Complex,
		store.TierCoding:    m.Coding,
		store.TierReasoning: m.Reasoning,
	}
}

// ProvidersConfig holds remote model provider endpoints.
type ProvidersConfig struct {
	Primary   ProviderConfig `json:"primary,omitempty"`
	Secondary ProviderConfig `json:"secondary,omitempty"`
}

// ProviderConfig is one OpenAI-compatible endpoint.
type ProviderConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Configured reports whether the provider has enough to be usable.
func (p ProviderConfig) Configured() bool {
	return p.BaseURL != "" && p.APIKey != ""
}

// RouterConfig tunes the tier router.
type RouterConfig struct {
	AssistTimeoutMS       int     `json:"assist_timeout_ms,omitempty"`
	AssistRPS             float64 `json:"assist_rps,omitempty"`
	CalibrationIntervalH  int     `json:"calibration_interval_hours,omitempty"`
	CalibrationMinRecords int     `json:"calibration_min_records,omitempty"`
}

// AssistTimeout converts the configured timeout into a duration.
func (r RouterConfig) AssistTimeout() time.Duration {
	return time.Duration(r.AssistTimeoutMS) * time.Millisecond
}

// CalibrationInterval converts the configured interval into a duration.
func (r RouterConfig) CalibrationInterval() time.Duration {
	return time.Duration(r.CalibrationIntervalH) * time.Hour
}

// TeamConfig names the bot roles and their profile layers.
type TeamConfig struct {
	Roles        []string `json:"roles,omitempty"`
	TemplateDir  string   `json:"template_dir,omitempty"`
	WorkspaceDir string   `json:"workspace_dir,omitempty"`
}

// LivenessConfig tunes the coordinator's heartbeat monitor.
type LivenessConfig struct {
	MonitorIntervalS  int `json:"monitor_interval_seconds,omitempty"`
	HeartbeatTimeoutS int `json:"heartbeat_timeout_seconds,omitempty"`
}

// DashboardConfig tunes the health dashboard.
type DashboardConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
}

// Default returns a Config with workable defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".goswarm")
	return &Config{
		DataDir: dataDir,
		Models: ModelsConfig{
			Simple:    "gpt-4o-mini",
			Medium:    "gpt-4o-mini",
			Complex:   "gpt-4o",
			Coding:    "gpt-4o",
			Reasoning: "o3-mini",
		},
		Router: RouterConfig{
			AssistTimeoutMS:       500,
			AssistRPS:             10,
			CalibrationIntervalH:  24,
			CalibrationMinRecords: 50,
		},
		Team: TeamConfig{
			Roles:        []string{"leader", "researcher", "coder", "social", "creative", "auditor"},
			TemplateDir:  filepath.Join(dataDir, "templates"),
			WorkspaceDir: filepath.Join(dataDir, "workspace"),
		},
		Liveness: LivenessConfig{
			MonitorIntervalS:  5,
			HeartbeatTimeoutS: 15,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Addr:    "127.0.0.1:18890",
		},
	}
}

// DBPath is the SQLite database location under the data dir.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "goswarm.db") }

// RoutingDir holds the router's JSON artefacts.
func (c *Config) RoutingDir() string { return filepath.Join(c.DataDir, "routing") }

// RoomsDir holds per-room JSON documents.
func (c *Config) RoomsDir() string { return filepath.Join(c.DataDir, "rooms") }

// ExpandHome resolves a leading ~ against the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
