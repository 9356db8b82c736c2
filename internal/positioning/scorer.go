package positioning

import (
	"math"

	"github.com/wifiloc/wifiloc/internal/types"
)

// fingerprintScore carries the outcome of matching one stored fingerprint
// against the live reading set.
type fingerprintScore struct {
	Score      float64
	MatchedAPs int
}

// scoreFingerprint computes the composite similarity between the live
// readings (indexed by BSSID) and one stored fingerprint. Each shared AP
// contributes exponential signal-difference decay, scaled by a band-match
// bonus, a sigmoid reliability weight of the stored signal, and the AP's
// rarity weight. The per-AP average is then adjusted by how large a fraction
// of both AP sets matched and by how low the average signal deviation was.
//
// ok is false when fewer than cfg.MinMatchedAPs shared APs were found; such
// a fingerprint contributes no score at all.
func scoreFingerprint(live map[string]types.SignalReading, liveCount int, fp types.Fingerprint, rarity map[string]float64, cfg types.ScoringConfig) (fingerprintScore, bool) {
	var sum, totalDeviation float64
	matched := 0

	for _, ref := range fp.Readings {
		curr, ok := live[ref.BSSID]
		if !ok {
			continue
		}

		signalDiff := math.Abs(float64(curr.SignalDbm - ref.SignalDbm))
		totalDeviation += signalDiff

		signalMatch := math.Exp(-signalDiff / cfg.DecayConstant)

		freqBonus := 1.0
		if sameBand(curr.FrequencyMHz, ref.FrequencyMHz) {
			freqBonus = cfg.FreqBonus
		}

		rarityBonus := rarity[ref.BSSID]
		if rarityBonus == 0 {
			rarityBonus = cfg.RarityDefault
		}
		rarityBonus *= cfg.RarityScale

		sum += signalMatch * freqBonus * strengthWeight(ref.SignalDbm, cfg) * rarityBonus
		matched++
	}

	if matched < cfg.MinMatchedAPs || matched == 0 {
		return fingerprintScore{}, false
	}

	avgScore := sum / float64(matched)

	larger := len(fp.Readings)
	if liveCount > larger {
		larger = liveCount
	}
	matchRatio := float64(matched) / float64(larger)
	matchRatioBonus := 0.8 + 0.2*matchRatio

	avgDeviation := totalDeviation / float64(matched)
	deviationBonus := 1.0 + 0.3*(1.0-math.Min(1.0, avgDeviation/cfg.DeviationScale))

	return fingerprintScore{
		Score:      avgScore * matchRatioBonus * deviationBonus,
		MatchedAPs: matched,
	}, true
}

// strengthWeight maps a stored signal level to a reliability weight in
// [0.1, 1.0] through a sigmoid: strong signals (~-50dBm) approach 1.0, weak
// ones (~-90dBm) approach 0.1.
func strengthWeight(dbm int, cfg types.ScoringConfig) float64 {
	curve := 1.0 / (1.0 + math.Exp(-cfg.SigmoidSlope*(float64(dbm)-cfg.SigmoidMid)))
	return 0.1 + 0.9*curve
}

// sameBand reports whether both frequencies fall in the same WiFi band
// (2.4GHz: 2400-2500MHz, 5GHz: 5150-5850MHz).
func sameBand(freq1, freq2 int) bool {
	in24 := func(f int) bool { return f >= 2400 && f <= 2500 }
	in5 := func(f int) bool { return f >= 5150 && f <= 5850 }
	return (in24(freq1) && in24(freq2)) || (in5(freq1) && in5(freq2))
}
