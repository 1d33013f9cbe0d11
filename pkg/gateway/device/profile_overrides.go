package device

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlRegisterRange is the on-disk shape of one scan interval in a device
// defaults override file — the same fields as registerRange, tagged for
// yaml.v3 decoding.
type yamlRegisterRange struct {
	Holding bool `yaml:"holding"`
	Start   int  `yaml:"start"`
	Count   int  `yaml:"count"`
}

// LoadProfiles decodes a YAML document mapping inverter type name to its
// list of scan ranges and merges it into the built-in profile table,
// overwriting any family the built-ins already define. It lets an operator
// add or correct an inverter family without a rebuild.
func LoadProfiles(r io.Reader) error {
	var doc map[string][]yamlRegisterRange
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("device: decode profile overrides: %w", err)
	}

	profilesMu.Lock()
	defer profilesMu.Unlock()
	for invType, ranges := range doc {
		converted := make([]registerRange, len(ranges))
		for i, r := range ranges {
			converted[i] = registerRange{holding: r.Holding, start: r.Start, count: r.Count}
		}
		profiles[invType] = converted
	}
	return nil
}

// LoadProfilesFile is LoadProfiles against a path. A missing file is not an
// error — an override file is optional and most gateways run on the
// built-in profile table alone.
func LoadProfilesFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("device: open profile overrides: %w", err)
	}
	defer f.Close()
	return LoadProfiles(f)
}
