package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointInBounds(t *testing.T) {
	assert.True(t, Point{X: 0, Y: 0}.InBounds())
	assert.True(t, Point{X: 1, Y: 1}.InBounds())
	assert.True(t, Point{X: 0.5, Y: 0.25}.InBounds())
	assert.False(t, Point{X: -0.01, Y: 0.5}.InBounds())
	assert.False(t, Point{X: 0.5, Y: 1.01}.InBounds())
}

func TestDecodeReadings(t *testing.T) {
	input := `[
		{"ssid":"CORP_5G","bssid":"aa:bb:cc:dd:ee:01","security":"[WPA2-PSK-CCMP]","frequency":5180,"rssi":-52},
		{"ssid":"guest","bssid":"aa:bb:cc:dd:ee:02","security":"[ESS]","frequency":2437,"rssi":-71}
	]`

	readings, err := DecodeReadings(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", readings[0].BSSID)
	assert.Equal(t, -52, readings[0].SignalDbm)
	assert.Equal(t, 2437, readings[1].FrequencyMHz)
}

func TestDecodeReadingsInvalid(t *testing.T) {
	_, err := DecodeReadings(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestFormattedTime(t *testing.T) {
	fp := Fingerprint{CapturedAt: 1700000000000}
	// Local-zone rendering; only check the shape.
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, fp.FormattedTime())
}

func TestDefaultConfigConfidenceWeightsSumToOne(t *testing.T) {
	c := DefaultConfig().Confidence
	sum := c.GapWeight + c.ClusterWeight + c.MatchCountWeight + c.ScoreWeight + c.APCountWeight
	assert.InDelta(t, 1.0, sum, 1e-9)
}
