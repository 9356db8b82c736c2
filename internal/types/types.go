package types

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Point is a normalized 2D map coordinate. Both axes are in [0,1]; (0,0) is
// the top-left corner of the map image the user taps on.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// InBounds reports whether the point lies inside the unit square.
func (p Point) InBounds() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// SignalReading is one observed access point from a WiFi scan.
// Immutable once captured. SignalDbm is always <= 0.
type SignalReading struct {
	SSID         string `json:"ssid"`
	BSSID        string `json:"bssid"`
	Security     string `json:"security"` // raw capability descriptor, e.g. "[WPA2-PSK-CCMP]"
	FrequencyMHz int    `json:"frequency"`
	SignalDbm    int    `json:"rssi"`
}

// Fingerprint ties a set of signal readings to a known map location.
// Owned exclusively by the store; never mutated after creation.
type Fingerprint struct {
	ID         string          `json:"id,omitempty"` // assigned on capture; absent in legacy files
	Point      Point           `json:"point"`
	CapturedAt int64           `json:"capturedAt"` // epoch millis
	Readings   []SignalReading `json:"readings"`
}

// FormattedTime renders the capture timestamp for display.
func (f Fingerprint) FormattedTime() string {
	return time.UnixMilli(f.CapturedAt).Format("2006-01-02 15:04:05")
}

// PositioningResult is the transient output of one positioning query.
type PositioningResult struct {
	Point          Point   `json:"point"`
	MatchScore     float64 `json:"match_score"`
	Confidence     float64 `json:"confidence"`
	MatchedAPs     int     `json:"matched_aps"`
	CandidateCount int     `json:"candidate_count"`
}

// DecodeReadings parses a scan-results file: a JSON array of signal readings
// as produced by an external scan collaborator or `wifiloc scan -f scanfile`.
func DecodeReadings(r io.Reader) ([]SignalReading, error) {
	var readings []SignalReading
	if err := json.NewDecoder(r).Decode(&readings); err != nil {
		return nil, fmt.Errorf("failed to decode scan results: %w", err)
	}
	return readings, nil
}

// Config represents the application configuration
type Config struct {
	Store       StoreConfig       `mapstructure:"store"`
	Scan        ScanConfig        `mapstructure:"scan"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Confidence  ConfidenceConfig  `mapstructure:"confidence"`
}

// StoreConfig locates the fingerprint store on disk.
type StoreConfig struct {
	File string `mapstructure:"file"`
}

// ScanConfig controls how raw scan results are filtered before matching.
type ScanConfig struct {
	// TargetSSID, when set, enables strict mode: only readings from this SSID
	// are used and an empty result means "no usable signal" (no fallback).
	TargetSSID   string `mapstructure:"target_ssid"`
	MaxAPs       int    `mapstructure:"max_aps"`
	SignalFloor  int    `mapstructure:"signal_floor"` // dBm; readings at or below are considered unreliable
	MinViableAPs int    `mapstructure:"min_viable_aps"`
}

// ScoringConfig holds the tunables of the per-fingerprint similarity score.
type ScoringConfig struct {
	DecayConstant  float64 `mapstructure:"decay_constant"` // smaller = stricter signal matching
	FreqBonus      float64 `mapstructure:"freq_bonus"`     // multiplier when both readings share a band
	SigmoidMid     float64 `mapstructure:"sigmoid_mid"`    // dBm inflection point of the strength weight
	SigmoidSlope   float64 `mapstructure:"sigmoid_slope"`
	RarityK        float64 `mapstructure:"rarity_k"`       // strength of the rarity weighting
	RarityDefault  float64 `mapstructure:"rarity_default"` // weight for never-before-seen APs
	RarityScale    float64 `mapstructure:"rarity_scale"`
	MinMatchedAPs  int     `mapstructure:"min_matched_aps"`
	MinScore       float64 `mapstructure:"min_score"`       // candidate acceptance threshold
	DeviationScale float64 `mapstructure:"deviation_scale"` // dBm scale of the low-deviation bonus
}

// AggregationConfig controls WKNN neighbor selection and weighting.
type AggregationConfig struct {
	RelativeThreshold float64 `mapstructure:"relative_threshold"` // keep candidates scoring >= top * this
	MinK              int     `mapstructure:"min_k"`
	MaxK              int     `mapstructure:"max_k"`
	Exponent          float64 `mapstructure:"exponent"` // weight = score^exponent
}

// ConfidenceConfig weights the terms of the confidence estimate.
// The five term weights must sum to 1.0.
type ConfidenceConfig struct {
	GapWeight          float64 `mapstructure:"gap_weight"`
	ClusterWeight      float64 `mapstructure:"cluster_weight"`
	MatchCountWeight   float64 `mapstructure:"match_count_weight"`
	ScoreWeight        float64 `mapstructure:"score_weight"`
	APCountWeight      float64 `mapstructure:"ap_count_weight"`
	ClusterSensitivity float64 `mapstructure:"cluster_sensitivity"`
	TargetMatchCount   int     `mapstructure:"target_match_count"`
	TargetAPCount      int     `mapstructure:"target_ap_count"`
	ScoreScale         float64 `mapstructure:"score_scale"`
	SingleCandidate    float64 `mapstructure:"single_candidate"`
	Floor              float64 `mapstructure:"floor"`
	Ceiling            float64 `mapstructure:"ceiling"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			File: filepath.Join(xdg.DataHome, "wifiloc", "wifi_fingerprint_records.json"),
		},
		Scan: ScanConfig{
			TargetSSID:   "",
			MaxAPs:       20,
			SignalFloor:  -85, // weaker than this is unstable indoors
			MinViableAPs: 3,
		},
		Scoring: ScoringConfig{
			DecayConstant:  12.0,
			FreqBonus:      1.2,
			SigmoidMid:     -75.0,
			SigmoidSlope:   0.15,
			RarityK:        0.8,
			RarityDefault:  1.2,
			RarityScale:    1.2,
			MinMatchedAPs:  3,
			MinScore:       0.35,
			DeviationScale: 25.0,
		},
		Aggregation: AggregationConfig{
			RelativeThreshold: 0.70,
			MinK:              1,
			MaxK:              5,
			Exponent:          2.0,
		},
		Confidence: ConfidenceConfig{
			GapWeight:          0.30,
			ClusterWeight:      0.25,
			MatchCountWeight:   0.20,
			ScoreWeight:        0.15,
			APCountWeight:      0.10,
			ClusterSensitivity: 6.0,
			TargetMatchCount:   8,
			TargetAPCount:      10,
			ScoreScale:         1.5,
			SingleCandidate:    0.3,
			Floor:              0.10,
			Ceiling:            0.95,
		},
	}
}
