// Package settingscache persists the blackboard's runtime settings
// document to a YAML file adjacent to the bootstrap file, so a restart
// starts from the last known configuration instead of empty every single
// time the process comes up. A missing cache file is treated the
// same as an empty one, not an error.
package settingscache

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
)

// Load reads the settings document at path and merges it into settings as
// ChangeSourceLocal. A missing file is not an error — a fresh gateway has
// no cache to load from yet.
func Load(path string, settings *blackboard.Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("settingscache: read %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("settingscache: decode %s: %w", path, err)
	}
	if len(doc) == 0 {
		return nil
	}
	settings.UpdateFromMap(doc, blackboard.ChangeSourceLocal)
	return nil
}

// Save writes settings' current snapshot to path as YAML, overwriting
// whatever was there. Called on graceful shutdown so the next startup's
// Load sees the most recent document.
func Save(path string, settings *blackboard.Settings) error {
	snapshot := settings.Snapshot()
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("settingscache: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("settingscache: write %s: %w", path, err)
	}
	return nil
}
