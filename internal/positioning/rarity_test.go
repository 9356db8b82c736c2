package positioning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wifiloc/wifiloc/internal/types"
)

func TestRarityWeightsFavorRareAPs(t *testing.T) {
	cfg := types.DefaultConfig().Scoring

	common := reading("common", -50)
	rare := reading("rare", -50)

	// "common" appears in every fingerprint, "rare" in one of four.
	fingerprints := []types.Fingerprint{
		{Point: types.Point{X: 0.1, Y: 0.1}, Readings: []types.SignalReading{common, rare}},
		{Point: types.Point{X: 0.2, Y: 0.2}, Readings: []types.SignalReading{common}},
		{Point: types.Point{X: 0.3, Y: 0.3}, Readings: []types.SignalReading{common}},
		{Point: types.Point{X: 0.4, Y: 0.4}, Readings: []types.SignalReading{common}},
	}

	weights := RarityWeights(fingerprints, []types.SignalReading{common, rare}, cfg)
	assert.Greater(t, weights["rare"], weights["common"])
	assert.Equal(t, 1.0, weights["common"]) // ubiquitous AP carries no extra weight
	assert.InDelta(t, 1.0+cfg.RarityK*0.75, weights["rare"], 1e-9)
}

func TestRarityWeightsUnseenAPGetsDefault(t *testing.T) {
	cfg := types.DefaultConfig().Scoring

	fingerprints := []types.Fingerprint{
		{Point: types.Point{X: 0.1, Y: 0.1}, Readings: []types.SignalReading{reading("known", -50)}},
	}

	weights := RarityWeights(fingerprints, []types.SignalReading{reading("unseen", -50)}, cfg)
	assert.Equal(t, cfg.RarityDefault, weights["unseen"])
}

func TestRarityWeightsEmptyHistory(t *testing.T) {
	cfg := types.DefaultConfig().Scoring

	weights := RarityWeights(nil, []types.SignalReading{reading("b1", -50)}, cfg)
	assert.Equal(t, cfg.RarityDefault, weights["b1"])
}
