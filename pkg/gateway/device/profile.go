package device

import "sync"

// registerRange is one contiguous scan interval within an inverter's
// register map: which register bank to read, the starting address, and
// how many registers to pull.
type registerRange struct {
	holding bool
	start   int
	count   int
}

var profilesMu sync.RWMutex

// profiles holds the scan ranges for the inverter families this gateway
// recognizes by name; any other family falls back to "generic". Adding a
// new family means adding one entry below; nothing else in this package
// changes.
var profiles = map[string][]registerRange{
	"solaredge": {
		{holding: true, start: 40000, count: 2},
		{holding: true, start: 40070, count: 40},
		{holding: true, start: 40190, count: 40},
	},
	"huawei": {
		{holding: true, start: 32000, count: 2},
		{holding: true, start: 32064, count: 20},
		{holding: true, start: 32080, count: 10},
	},
	"generic": {
		{holding: false, start: 0, count: 2},
		{holding: false, start: 4, count: 20},
	},
}

// profileFor returns the scan ranges for invType, falling back to
// "generic" for any family this build doesn't recognize. A gateway that
// refuses to open a device it doesn't have a named profile for is
// strictly worse than one that tries the input-register convention and
// reports whatever it reads.
func profileFor(invType string) []registerRange {
	profilesMu.RLock()
	defer profilesMu.RUnlock()
	if r, ok := profiles[invType]; ok {
		return r
	}
	return profiles["generic"]
}
