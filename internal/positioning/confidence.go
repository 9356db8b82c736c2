package positioning

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wifiloc/wifiloc/internal/types"
)

// estimateConfidence derives a 0-1 confidence value from the full ranked
// candidate list, not the trimmed neighbor set: a dominant match that
// collapses the dynamic K to 1 must still be measured against the
// runners-up it beat. It blends five signals: the score gap between the top
// two candidates, how tightly the top candidate points cluster, how many
// APs the best candidate matched, the absolute top score, and how many
// usable APs the scan produced. Only a truly lone candidate location has
// nothing to be compared against and gets a fixed moderate value instead.
func estimateConfidence(candidates []candidate, usableAPs int, cfg types.ConfidenceConfig) float64 {
	if len(candidates) <= 1 {
		return cfg.SingleCandidate
	}

	top := candidates[0]

	scoreGap := (top.Score - candidates[1].Score) / top.Score

	clusterScore := 1.0 / (1.0 + avgCandidateDistance(candidates)*cfg.ClusterSensitivity)

	matchScore := math.Min(1.0, float64(top.MatchedAPs)/float64(cfg.TargetMatchCount))

	absoluteScore := math.Min(1.0, top.Score*cfg.ScoreScale)

	apCountScore := math.Min(1.0, float64(usableAPs)/float64(cfg.TargetAPCount))

	confidence := scoreGap*cfg.GapWeight +
		clusterScore*cfg.ClusterWeight +
		matchScore*cfg.MatchCountWeight +
		absoluteScore*cfg.ScoreWeight +
		apCountScore*cfg.APCountWeight

	return clamp(confidence, cfg.Floor, cfg.Ceiling)
}

// avgCandidateDistance is the mean distance from the best candidate to each
// of the next (up to three) candidates. Tightly clustered top candidates
// mean the store agrees about where the device is.
func avgCandidateDistance(candidates []candidate) float64 {
	limit := len(candidates)
	if limit > 4 {
		limit = 4
	}

	distances := make([]float64, 0, limit-1)
	best := candidates[0].Point
	for _, n := range candidates[1:limit] {
		distances = append(distances, math.Hypot(best.X-n.Point.X, best.Y-n.Point.Y))
	}
	if len(distances) == 0 {
		return 0
	}
	return stat.Mean(distances, nil)
}
