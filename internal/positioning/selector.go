package positioning

import (
	"sort"

	"github.com/wifiloc/wifiloc/internal/types"
)

// SelectAPs reduces a raw scan to the bounded, reliable subset used for
// matching: optional strict target-SSID filter, strongest-first ordering,
// BSSID dedup, cap at cfg.MaxAPs, then a preference for readings above the
// signal floor with a fallback to the capped list when too few survive.
//
// In strict mode (cfg.TargetSSID set) an empty result means "no usable
// signal" and callers must not fall back to other networks.
func SelectAPs(readings []types.SignalReading, cfg types.ScanConfig) []types.SignalReading {
	selected := readings
	if cfg.TargetSSID != "" {
		selected = nil
		for _, r := range readings {
			if r.SSID == cfg.TargetSSID {
				selected = append(selected, r)
			}
		}
		if len(selected) == 0 {
			return nil
		}
	}

	sorted := append([]types.SignalReading(nil), selected...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SignalDbm > sorted[j].SignalDbm
	})

	// Strongest occurrence of each BSSID wins.
	seen := make(map[string]struct{}, len(sorted))
	unique := sorted[:0]
	for _, r := range sorted {
		if _, ok := seen[r.BSSID]; ok {
			continue
		}
		seen[r.BSSID] = struct{}{}
		unique = append(unique, r)
	}

	if cfg.MaxAPs > 0 && len(unique) > cfg.MaxAPs {
		unique = unique[:cfg.MaxAPs]
	}

	var reliable []types.SignalReading
	for _, r := range unique {
		if r.SignalDbm > cfg.SignalFloor {
			reliable = append(reliable, r)
		}
	}

	if len(reliable) >= cfg.MinViableAPs {
		return reliable
	}
	return unique
}
