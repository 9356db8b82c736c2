package positioning

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wifiloc/wifiloc/internal/types"
)

// candidate is one stored location with its best similarity score against
// the live readings.
type candidate struct {
	Point      types.Point
	Score      float64
	MatchedAPs int
}

// selectNeighbors picks the dynamic-K neighbor set from candidates sorted by
// descending score: every candidate scoring at least top*RelativeThreshold,
// clipped to the [MinK, MaxK] window. K thereby adapts to how clearly one
// location dominates.
func selectNeighbors(candidates []candidate, cfg types.AggregationConfig) []candidate {
	if len(candidates) == 0 {
		return nil
	}

	top := candidates[0].Score
	k := 0
	for _, c := range candidates {
		if c.Score < top*cfg.RelativeThreshold {
			break
		}
		k++
	}

	if k < cfg.MinK {
		k = cfg.MinK
	}
	if cfg.MaxK > 0 && k > cfg.MaxK {
		k = cfg.MaxK
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

// weightedPosition computes the score-weighted average of the neighbor
// points, with weights score^Exponent. The result is clamped to the unit
// square. A degenerate zero weight sum falls back to the best neighbor's
// point.
func weightedPosition(neighbors []candidate, cfg types.AggregationConfig) types.Point {
	xs := make([]float64, len(neighbors))
	ys := make([]float64, len(neighbors))
	ws := make([]float64, len(neighbors))

	var weightSum float64
	for i, n := range neighbors {
		xs[i] = n.Point.X
		ys[i] = n.Point.Y
		ws[i] = math.Pow(n.Score, cfg.Exponent)
		weightSum += ws[i]
	}

	if weightSum <= 0 {
		return clampPoint(neighbors[0].Point)
	}

	return clampPoint(types.Point{
		X: stat.Mean(xs, ws),
		Y: stat.Mean(ys, ws),
	})
}

func clampPoint(p types.Point) types.Point {
	return types.Point{
		X: clamp(p.X, 0, 1),
		Y: clamp(p.Y, 0, 1),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
