package positioning

import "github.com/wifiloc/wifiloc/internal/types"

// RarityWeights computes, for each candidate AP, a weight inversely related
// to how many stored fingerprints contain its BSSID. An AP visible at few
// spots pins down location far better than one visible everywhere.
//
// The weight is 1 + k*(1 - min(1, spotCount/totalFingerprints)), so a
// ubiquitous AP gets 1.0 and the rarest get 1+k. APs with no history carry
// no disambiguating signal yet and get cfg.RarityDefault.
func RarityWeights(fingerprints []types.Fingerprint, candidates []types.SignalReading, cfg types.ScoringConfig) map[string]float64 {
	spotCounts := make(map[string]int)
	for _, fp := range fingerprints {
		for _, r := range fp.Readings {
			spotCounts[r.BSSID]++
		}
	}

	weights := make(map[string]float64, len(candidates))
	total := float64(len(fingerprints))
	for _, c := range candidates {
		count := float64(spotCounts[c.BSSID])
		if count == 0 || total == 0 {
			weights[c.BSSID] = cfg.RarityDefault
			continue
		}
		ratio := count / total
		if ratio > 1 {
			ratio = 1
		}
		weights[c.BSSID] = 1.0 + cfg.RarityK*(1.0-ratio)
	}
	return weights
}
