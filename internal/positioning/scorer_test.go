package positioning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifiloc/wifiloc/internal/types"
)

// plainScoring neutralizes the bonus multipliers so individual terms can be
// checked in isolation.
func plainScoring() types.ScoringConfig {
	cfg := types.DefaultConfig().Scoring
	cfg.FreqBonus = 1.0
	cfg.RarityK = 0
	cfg.RarityDefault = 1.0
	cfg.RarityScale = 1.0
	cfg.MinMatchedAPs = 1
	return cfg
}

func liveMap(readings ...types.SignalReading) map[string]types.SignalReading {
	m := make(map[string]types.SignalReading, len(readings))
	for _, r := range readings {
		m[r.BSSID] = r
	}
	return m
}

func TestScoreFingerprintExactMatch(t *testing.T) {
	cfg := plainScoring()

	live := reading("b1", -50)
	fp := types.Fingerprint{
		Point:    types.Point{X: 0.5, Y: 0.5},
		Readings: []types.SignalReading{reading("b1", -50)},
	}

	rarity := map[string]float64{"b1": 1.0}
	score, ok := scoreFingerprint(liveMap(live), 1, fp, rarity, cfg)
	require.True(t, ok)
	assert.Equal(t, 1, score.MatchedAPs)

	// Zero signal difference: signalMatch is exactly 1.0, the deviation
	// bonus is at its 1.3 maximum, and the only attenuation left is the
	// strength weight of the stored -50dBm signal.
	expected := strengthWeight(-50, cfg) * 1.3
	assert.InDelta(t, expected, score.Score, 1e-9)
}

func TestScoreFingerprintTooFewMatches(t *testing.T) {
	cfg := plainScoring()
	cfg.MinMatchedAPs = 2

	live := reading("b1", -50)
	fp := types.Fingerprint{
		Readings: []types.SignalReading{reading("b1", -50), reading("b2", -60)},
	}

	_, ok := scoreFingerprint(liveMap(live), 1, fp, map[string]float64{}, cfg)
	assert.False(t, ok)
}

func TestScoreFingerprintMonotonicSignalDiff(t *testing.T) {
	cfg := plainScoring()

	live := liveMap(reading("b1", -50))

	closer := types.Fingerprint{Readings: []types.SignalReading{reading("b1", -52)}}
	farther := types.Fingerprint{Readings: []types.SignalReading{reading("b1", -70)}}

	rarity := map[string]float64{"b1": 1.0}
	closerScore, ok := scoreFingerprint(live, 1, closer, rarity, cfg)
	require.True(t, ok)
	fartherScore, ok := scoreFingerprint(live, 1, farther, rarity, cfg)
	require.True(t, ok)

	assert.Greater(t, closerScore.Score, fartherScore.Score)
}

func TestScoreFingerprintFreqBonusAppliesWithinBand(t *testing.T) {
	cfg := plainScoring()
	cfg.FreqBonus = 1.2

	live := reading("b1", -50) // 5180 MHz

	sameBandRef := reading("b1", -50)
	crossBandRef := reading("b1", -50)
	crossBandRef.FrequencyMHz = 2437

	rarity := map[string]float64{"b1": 1.0}
	withBonus, ok := scoreFingerprint(liveMap(live), 1,
		types.Fingerprint{Readings: []types.SignalReading{sameBandRef}}, rarity, cfg)
	require.True(t, ok)
	withoutBonus, ok := scoreFingerprint(liveMap(live), 1,
		types.Fingerprint{Readings: []types.SignalReading{crossBandRef}}, rarity, cfg)
	require.True(t, ok)

	assert.InDelta(t, withBonus.Score, withoutBonus.Score*1.2, 1e-9)
}

func TestScoreFingerprintMatchRatioBonus(t *testing.T) {
	cfg := plainScoring()

	live := liveMap(reading("b1", -50), reading("b2", -55))

	full := types.Fingerprint{Readings: []types.SignalReading{reading("b1", -50), reading("b2", -55)}}
	partial := types.Fingerprint{Readings: []types.SignalReading{reading("b1", -50), reading("b3", -55)}}

	rarity := map[string]float64{"b1": 1.0, "b2": 1.0, "b3": 1.0}
	fullScore, ok := scoreFingerprint(live, 2, full, rarity, cfg)
	require.True(t, ok)
	partialScore, ok := scoreFingerprint(live, 2, partial, rarity, cfg)
	require.True(t, ok)

	// Same per-AP similarity, but matching both APs beats matching one of two.
	assert.Greater(t, fullScore.Score, partialScore.Score)
}

func TestStrengthWeightRange(t *testing.T) {
	cfg := types.DefaultConfig().Scoring

	strong := strengthWeight(-50, cfg)
	medium := strengthWeight(-75, cfg)
	weak := strengthWeight(-90, cfg)

	assert.Greater(t, strong, medium)
	assert.Greater(t, medium, weak)
	assert.InDelta(t, 0.55, medium, 1e-9) // midpoint of the sigmoid
	assert.Greater(t, strong, 0.9)
	assert.Less(t, weak, 0.3)
	assert.GreaterOrEqual(t, weak, 0.1)
}

func TestSameBand(t *testing.T) {
	assert.True(t, sameBand(2412, 2484))
	assert.True(t, sameBand(5180, 5825))
	assert.False(t, sameBand(2437, 5180))
	assert.False(t, sameBand(900, 2437)) // outside both bands
}

func TestEstimateDistanceMonotonic(t *testing.T) {
	assert.InDelta(t, 1.0, EstimateDistance(-40), 1e-9) // reference point
	assert.Less(t, EstimateDistance(-50), EstimateDistance(-70))
	assert.Less(t, EstimateDistance(-70), EstimateDistance(-90))
	assert.InDelta(t, 10.0, EstimateDistance(-70), 1e-9) // one decade per 30dB at n=3
	assert.False(t, math.IsInf(EstimateDistance(-100), 1))
}
