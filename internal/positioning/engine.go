package positioning

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/wifiloc/wifiloc/internal/types"
)

// FingerprintSource supplies the stored reference fingerprints for a
// positioning query. *store.Store satisfies it.
type FingerprintSource interface {
	All() []types.Fingerprint
}

// Engine estimates a map position from a live scan by matching it against
// every stored fingerprint. Each call is independent and purely CPU-bound;
// callers that care about latency should invoke Estimate off their
// interactive thread.
type Engine struct {
	source FingerprintSource
	cfg    *types.Config
	log    *logrus.Logger
}

// NewEngine creates a positioning engine reading reference data from source.
func NewEngine(source FingerprintSource, cfg *types.Config, logger *logrus.Logger) *Engine {
	return &Engine{
		source: source,
		cfg:    cfg,
		log:    logger,
	}
}

// Estimate runs the full positioning pipeline over the given scan results
// and returns the most likely map position with a confidence value.
//
// A nil result means no estimate is available. That is a normal outcome, not
// an error: the store may be empty, the scan may hold no usable APs, or no
// stored location may clear the acceptance threshold.
func (e *Engine) Estimate(readings []types.SignalReading) *types.PositioningResult {
	fingerprints := e.source.All()
	if len(fingerprints) == 0 {
		e.log.Debug("No fingerprints stored, cannot estimate")
		return nil
	}

	selected := SelectAPs(readings, e.cfg.Scan)
	if len(selected) < e.cfg.Scoring.MinMatchedAPs {
		e.log.WithFields(logrus.Fields{
			"usable":   len(selected),
			"required": e.cfg.Scoring.MinMatchedAPs,
		}).Debug("Not enough usable APs for positioning")
		return nil
	}

	live := make(map[string]types.SignalReading, len(selected))
	for _, r := range selected {
		live[r.BSSID] = r
	}

	rarity := RarityWeights(fingerprints, selected, e.cfg.Scoring)

	// Multiple captures at the same exact point form one location; the best
	// capture score represents it.
	best := make(map[types.Point]candidate)
	var order []types.Point
	for _, fp := range fingerprints {
		score, ok := scoreFingerprint(live, len(selected), fp, rarity, e.cfg.Scoring)
		if !ok {
			continue
		}
		cur, seen := best[fp.Point]
		if !seen {
			order = append(order, fp.Point)
		}
		if !seen || score.Score > cur.Score {
			best[fp.Point] = candidate{
				Point:      fp.Point,
				Score:      score.Score,
				MatchedAPs: score.MatchedAPs,
			}
		}
	}

	var candidates []candidate
	for _, p := range order {
		if c := best[p]; c.Score > e.cfg.Scoring.MinScore {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		e.log.Debug("No stored location cleared the acceptance threshold")
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	neighbors := selectNeighbors(candidates, e.cfg.Aggregation)
	point := weightedPosition(neighbors, e.cfg.Aggregation)
	// Confidence looks at the whole ranked field, so a dominant match that
	// shrank the neighbor set to itself is still scored by its margin.
	confidence := estimateConfidence(candidates, len(selected), e.cfg.Confidence)

	e.log.WithFields(logrus.Fields{
		"x":          point.X,
		"y":          point.Y,
		"score":      neighbors[0].Score,
		"confidence": confidence,
		"neighbors":  len(neighbors),
		"candidates": len(candidates),
	}).Debug("Estimated position")

	return &types.PositioningResult{
		Point:          point,
		MatchScore:     neighbors[0].Score,
		Confidence:     confidence,
		MatchedAPs:     neighbors[0].MatchedAPs,
		CandidateCount: len(candidates),
	}
}
