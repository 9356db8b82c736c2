package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifiloc/wifiloc/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "fingerprints.json"), testLogger())
}

func sampleReadings() []types.SignalReading {
	return []types.SignalReading{
		{SSID: "CORP_5G", BSSID: "aa:bb:cc:dd:ee:01", Security: "[WPA2-PSK-CCMP]", FrequencyMHz: 5180, SignalDbm: -48},
		{SSID: "CORP_5G", BSSID: "aa:bb:cc:dd:ee:02", Security: "[WPA2-PSK-CCMP]", FrequencyMHz: 5200, SignalDbm: -61},
		{SSID: "guest", BSSID: "aa:bb:cc:dd:ee:03", Security: "[WPA2-PSK-CCMP]", FrequencyMHz: 2437, SignalDbm: -70},
	}
}

func TestAddAndCount(t *testing.T) {
	s := testStore(t)
	require.Equal(t, 0, s.Count())

	fp, err := s.Add(types.Point{X: 0.5, Y: 0.5}, sampleReadings())
	require.NoError(t, err)
	require.Equal(t, 1, s.Count())
	assert.NotEmpty(t, fp.ID)
	assert.NotZero(t, fp.CapturedAt)
	assert.Len(t, fp.Readings, 3)
}

func TestAddRejectsInvalid(t *testing.T) {
	s := testStore(t)

	// Out-of-bounds point.
	_, err := s.Add(types.Point{X: 1.5, Y: 0.5}, sampleReadings())
	require.Error(t, err)

	// Positive dBm reading.
	bad := sampleReadings()
	bad[0].SignalDbm = 30
	_, err = s.Add(types.Point{X: 0.5, Y: 0.5}, bad)
	require.Error(t, err)

	// Neither record may reach memory or disk.
	assert.Equal(t, 0, s.Count())
	reloaded := New(s.Path(), testLogger())
	assert.Equal(t, 0, reloaded.Count())
}

func TestUniqueLocationsIdempotent(t *testing.T) {
	s := testStore(t)
	p := types.Point{X: 0.25, Y: 0.75}

	s.Add(p, sampleReadings())
	s.Add(p, sampleReadings())
	s.Add(types.Point{X: 0.8, Y: 0.1}, sampleReadings())

	locations := s.UniqueLocations()
	require.Len(t, locations, 2)
	// First-seen order.
	assert.Equal(t, p, locations[0])
}

func TestRemoveNearProximity(t *testing.T) {
	s := testStore(t)
	p := types.Point{X: 0.5, Y: 0.5}

	s.Add(types.Point{X: p.X + 0.04, Y: p.Y + 0.04}, sampleReadings()) // inside epsilon
	s.Add(types.Point{X: p.X + 0.06, Y: p.Y + 0.06}, sampleReadings()) // outside epsilon

	removed := s.RemoveNear(p)
	assert.Equal(t, 1, removed)
	require.Equal(t, 1, s.Count())
	assert.Equal(t, types.Point{X: 0.56, Y: 0.56}, s.All()[0].Point)
}

func TestRemoveByID(t *testing.T) {
	s := testStore(t)
	fp, err := s.Add(types.Point{X: 0.1, Y: 0.1}, sampleReadings())
	require.NoError(t, err)
	s.Add(types.Point{X: 0.9, Y: 0.9}, sampleReadings())

	require.True(t, s.RemoveByID(fp.ID))
	assert.False(t, s.RemoveByID(fp.ID))
	assert.Equal(t, 1, s.Count())
}

func TestQueryNear(t *testing.T) {
	s := testStore(t)
	s.Add(types.Point{X: 0.30, Y: 0.30}, sampleReadings())
	s.Add(types.Point{X: 0.32, Y: 0.32}, sampleReadings())
	s.Add(types.Point{X: 0.90, Y: 0.90}, sampleReadings())

	assert.Len(t, s.QueryNear(types.Point{X: 0.31, Y: 0.31}), 2)
	assert.Empty(t, s.QueryNear(types.Point{X: 0.5, Y: 0.5}))
}

func TestCountAtExactPoint(t *testing.T) {
	s := testStore(t)
	s.Add(types.Point{X: 0.30, Y: 0.30}, sampleReadings())
	s.Add(types.Point{X: 0.30, Y: 0.30}, sampleReadings())
	// Within the proximity epsilon of the first point, but a distinct location.
	s.Add(types.Point{X: 0.32, Y: 0.32}, sampleReadings())

	assert.Equal(t, 2, s.CountAt(types.Point{X: 0.30, Y: 0.30}))
	assert.Equal(t, 1, s.CountAt(types.Point{X: 0.32, Y: 0.32}))
	assert.Equal(t, 0, s.CountAt(types.Point{X: 0.31, Y: 0.31}))

	// Per-location counts cover the whole store.
	total := 0
	for _, p := range s.UniqueLocations() {
		total += s.CountAt(p)
	}
	assert.Equal(t, s.Count(), total)
}

func TestRoundTripPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingerprints.json")

	s := New(path, testLogger())
	s.Add(types.Point{X: 0.1, Y: 0.2}, sampleReadings())
	s.Add(types.Point{X: 0.3, Y: 0.4}, sampleReadings()[:1])
	before := s.All()

	reloaded := New(path, testLogger())
	require.Equal(t, before, reloaded.All())
}

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist.json"), testLogger())
	assert.Equal(t, 0, s.Count())
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingerprints.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json!!!"), 0o644))

	s := New(path, testLogger())
	assert.Equal(t, 0, s.Count())
}

func TestLoadDropsMalformedRecords(t *testing.T) {
	content := `[
		{"id":"a","point":{"x":0.5,"y":0.5},"capturedAt":1700000000000,"readings":[{"ssid":"s","bssid":"b1","security":"[WPA2]","frequency":5180,"rssi":-50}]},
		{"id":"b","point":{"x":1.5,"y":0.5},"capturedAt":1700000000000,"readings":[]},
		{"id":"c","point":{"x":0.5,"y":0.5},"capturedAt":1700000000000,"readings":[{"ssid":"s","bssid":"b2","security":"[WPA2]","frequency":5180,"rssi":30}]}
	]`

	path := filepath.Join(t.TempDir(), "fingerprints.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := New(path, testLogger())
	require.Equal(t, 1, s.Count())
	assert.Equal(t, "a", s.All()[0].ID)
}

func TestLoadLegacyRecordWithoutID(t *testing.T) {
	content := `[{"point":{"x":0.5,"y":0.5},"capturedAt":1700000000000,"readings":[{"ssid":"s","bssid":"b1","security":"[WPA2]","frequency":5180,"rssi":-50}]}]`

	path := filepath.Join(t.TempDir(), "fingerprints.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := New(path, testLogger())
	require.Equal(t, 1, s.Count())
	assert.Empty(t, s.All()[0].ID)
}

func TestWipeAll(t *testing.T) {
	s := testStore(t)
	s.Add(types.Point{X: 0.5, Y: 0.5}, sampleReadings())

	require.True(t, s.WipeAll())
	assert.Equal(t, 0, s.Count())

	// The wiped state must be what a reload sees.
	reloaded := New(s.Path(), testLogger())
	assert.Equal(t, 0, reloaded.Count())
}

func TestAllReturnsSnapshot(t *testing.T) {
	s := testStore(t)
	s.Add(types.Point{X: 0.5, Y: 0.5}, sampleReadings())

	snapshot := s.All()
	s.Add(types.Point{X: 0.6, Y: 0.6}, sampleReadings())
	assert.Len(t, snapshot, 1)
}

func TestExportCSVRowCount(t *testing.T) {
	s := testStore(t)
	s.Add(types.Point{X: 0.1, Y: 0.2}, sampleReadings()) // 3 readings
	s.Add(types.Point{X: 0.3, Y: 0.4}, sampleReadings()) // 3 readings

	csv := s.ExportCSV("")
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	require.Len(t, lines, 7) // header + 2*3 rows
	assert.Equal(t, "x,y,timestamp,ssid,bssid,security,frequency,rssi", lines[0])
}

func TestExportCSVTargetSSIDFilter(t *testing.T) {
	s := testStore(t)
	s.Add(types.Point{X: 0.1, Y: 0.2}, sampleReadings())

	csv := s.ExportCSV("CORP_5G")
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	require.Len(t, lines, 3) // header + the two CORP_5G readings
	for _, line := range lines[1:] {
		assert.Contains(t, line, "CORP_5G")
	}
}

func TestExportCSVTargetSSIDFallback(t *testing.T) {
	s := testStore(t)
	s.Add(types.Point{X: 0.1, Y: 0.2}, sampleReadings())

	// No reading matches: the record falls back to all readings so legacy
	// data stays visible.
	csv := s.ExportCSV("NO_SUCH_SSID")
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	assert.Len(t, lines, 4)
}
