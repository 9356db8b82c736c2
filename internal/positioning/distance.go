package positioning

import "math"

// Log-distance path loss parameters for indoor spaces.
const (
	pathLossExponent  = 3.0   // indoor propagation, walls and furniture
	referenceDistance = 1.0   // meters
	referenceSignal   = -40.0 // dBm measured at the reference distance
)

// EstimateDistance converts a received signal strength to a rough distance
// in meters using the log-distance path loss model:
//
//	d = d0 * 10^((P0 - rssi) / (10 * n))
//
// Indoor multipath makes this a coarse estimate only; it is surfaced for
// diagnostics, not used by the fingerprint matcher.
func EstimateDistance(rssi int) float64 {
	ratio := (referenceSignal - float64(rssi)) / (10 * pathLossExponent)
	return referenceDistance * math.Pow(10, ratio)
}
