package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// TelemetryConfig gates optional OTLP span export (spec.md §11 DOMAIN
// STACK), off by default. cmd/halo's serve command traces the markdown syncs
// triggered by its fsnotify watcher; retention scheduler runs are not
// traced. Named in the
// teacher's own shape (internal/config/config.go's TelemetryConfig).
type TelemetryConfig struct {
	Enabled        bool   `json:"enabled"`
	OTLPEndpoint   string `json:"otlpEndpoint,omitempty"`
	ServiceName    string `json:"serviceName,omitempty"`
}

// RetentionRuntimeConfig mirrors retention.Config's fields as they appear in
// the top-level runtime config file, decoupling the persisted shape from
// the retention package's internal Config type.
type RetentionRuntimeConfig struct {
	Enabled                  bool     `json:"enabled"`
	MaxAgeDays               int      `json:"maxAgeDays"`
	IntervalMs               int      `json:"intervalMs"`
	DeleteOpenAIFiles        bool     `json:"deleteOpenAIFiles"`
	MaxFilesPerRun           int      `json:"maxFilesPerRun"`
	DryRun                   bool     `json:"dryRun"`
	KeepRecentPerScope       int      `json:"keepRecentPerScope"`
	MaxDeletesPerScopePerRun int      `json:"maxDeletesPerScopePerRun"`
	AllowScopeIDs            []string `json:"allowScopeIds"`
	DenyScopeIDs             []string `json:"denyScopeIds"`
	PolicyPreset             string   `json:"policyPreset"`
}

// FileMemoryRuntimeConfig gates the file-memory subsystem as a whole,
// independent of whether the retention scheduler itself is enabled.
type FileMemoryRuntimeConfig struct {
	Enabled bool `json:"enabled"`
}

// DistillationRuntimeConfig gates the /sessions/{scopeId}/distill endpoint.
type DistillationRuntimeConfig struct {
	Enabled bool `json:"enabled"`
}

// AdminRuntimeConfig configures the admin HTTP listener.
type AdminRuntimeConfig struct {
	ListenAddr string `json:"listenAddr"`
}

// RuntimeConfig is the top-level config.json (spec.md §6): it selects the
// control-plane profile and carries feature flags/subsystem tuning that are
// not part of the household data contract.
type RuntimeConfig struct {
	ControlPlanePath    string                     `json:"controlPlanePath,omitempty"`
	ControlPlaneProfile string                     `json:"controlPlaneProfile,omitempty"`
	Retention           RetentionRuntimeConfig      `json:"retention"`
	FileMemory          FileMemoryRuntimeConfig     `json:"fileMemory"`
	Distillation        DistillationRuntimeConfig   `json:"distillation"`
	Admin               AdminRuntimeConfig          `json:"admin"`
	Telemetry           TelemetryConfig             `json:"telemetry"`
}

// DefaultRuntimeConfig returns the conservative defaults: retention and
// file memory enabled with safe caps, distillation disabled, admin bound to
// loopback only.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Retention: RetentionRuntimeConfig{
			Enabled:                  true,
			MaxAgeDays:               30,
			IntervalMs:               6 * 60 * 60 * 1000,
			DeleteOpenAIFiles:        true,
			MaxFilesPerRun:           50,
			KeepRecentPerScope:       1,
			MaxDeletesPerScopePerRun: 10,
			PolicyPreset:             "all",
		},
		FileMemory:   FileMemoryRuntimeConfig{Enabled: true},
		Distillation: DistillationRuntimeConfig{Enabled: false},
		Admin:        AdminRuntimeConfig{ListenAddr: "127.0.0.1:8787"},
	}
}

// LoadRuntimeConfig reads path, falling back to DefaultRuntimeConfig when
// the file does not exist (first-run tolerance, matching Load's rule for
// the family config).
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuntimeConfig(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultRuntimeConfig()
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
