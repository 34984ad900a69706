package cmd

import (
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/halo/internal/config"
	"github.com/nextlevelbuilder/halo/internal/halohome"
)

// resolveFamilyConfigPath implements spec.md §6's profile resolution order:
// HALO_CONTROL_PLANE_PATH env var, then the runtime config's
// controlPlanePath (optionally joined with HALO_CONTROL_PLANE_PROFILE),
// then the legacy default config/family.json.
func resolveFamilyConfigPath(home string, runtime *config.RuntimeConfig) string {
	if v := os.Getenv("HALO_CONTROL_PLANE_PATH"); v != "" {
		return v
	}
	if runtime != nil && runtime.ControlPlanePath != "" {
		path := runtime.ControlPlanePath
		if profile := resolveControlPlaneProfile(runtime); profile != "" {
			path = filepath.Join(path, profile+".json")
		}
		return path
	}
	return halohome.FamilyConfigPath(home)
}

func resolveControlPlaneProfile(runtime *config.RuntimeConfig) string {
	if v := os.Getenv("HALO_CONTROL_PLANE_PROFILE"); v != "" {
		return v
	}
	if runtime != nil {
		return runtime.ControlPlaneProfile
	}
	return ""
}
