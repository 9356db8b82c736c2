package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wifiloc/wifiloc/internal/types"
)

// ProximityEpsilon is the per-axis distance under which two map points are
// treated as the same location for delete and query operations.
const ProximityEpsilon = 0.05

// csvHeader is the fixed export header; column order matches the
// SignalReading field order.
const csvHeader = "x,y,timestamp,ssid,bssid,security,frequency,rssi"

// Store owns the persisted collection of fingerprints. All access goes
// through a single mutex; reads hand out snapshot copies so callers never
// observe a concurrent mutation.
type Store struct {
	mu           sync.Mutex
	path         string
	fingerprints []types.Fingerprint
	log          *logrus.Logger
}

// New creates a store backed by the JSON file at path and eagerly loads its
// contents. A missing or corrupt file is not an error: the store starts
// empty and the problem is logged.
func New(path string, logger *logrus.Logger) *Store {
	s := &Store{
		path: path,
		log:  logger,
	}
	s.load()
	return s
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Add appends a fingerprint captured now at the given point and persists the
// store. It rejects input violating the data invariants that load enforces,
// so a capture can never produce a record the next startup would drop.
// Persistence failures are logged, not returned: losing a write must not
// crash the capture flow, and the in-memory state always reflects the add.
func (s *Store) Add(point types.Point, readings []types.SignalReading) (types.Fingerprint, error) {
	fp := types.Fingerprint{
		ID:         uuid.NewString(),
		Point:      point,
		CapturedAt: time.Now().UnixMilli(),
		Readings:   append([]types.SignalReading(nil), readings...),
	}

	if !validFingerprint(fp) {
		return types.Fingerprint{}, fmt.Errorf("invalid fingerprint at (%g, %g): point must lie in [0,1]x[0,1] and readings must have non-positive dBm", point.X, point.Y)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fingerprints = append(s.fingerprints, fp)
	s.save()

	s.log.WithFields(logrus.Fields{
		"x":        point.X,
		"y":        point.Y,
		"readings": len(readings),
		"total":    len(s.fingerprints),
	}).Info("Stored fingerprint")

	return fp, nil
}

// RemoveNear deletes every fingerprint within the proximity epsilon of the
// given point and returns how many were removed.
func (s *Store) RemoveNear(point types.Point) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.fingerprints[:0]
	for _, fp := range s.fingerprints {
		if !nearby(fp.Point, point) {
			kept = append(kept, fp)
		}
	}

	removed := len(s.fingerprints) - len(kept)
	s.fingerprints = kept
	if removed > 0 {
		s.save()
	}

	s.log.WithFields(logrus.Fields{
		"x":       point.X,
		"y":       point.Y,
		"removed": removed,
	}).Info("Removed fingerprints near point")

	return removed
}

// RemoveByID deletes the fingerprint with the given record ID. It reports
// whether a record was found.
func (s *Store) RemoveByID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, fp := range s.fingerprints {
		if fp.ID == id {
			s.fingerprints = append(s.fingerprints[:i], s.fingerprints[i+1:]...)
			s.save()
			return true
		}
	}
	return false
}

// WipeAll clears every fingerprint. The success flag is false only when the
// cleared state could not be persisted.
func (s *Store) WipeAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fingerprints = nil
	if err := s.persist(); err != nil {
		s.log.WithError(err).Error("Failed to persist wiped store")
		return false
	}

	s.log.Info("Wiped all fingerprints")
	return true
}

// QueryNear returns every fingerprint within the proximity epsilon of point.
func (s *Store) QueryNear(point types.Point) []types.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []types.Fingerprint
	for _, fp := range s.fingerprints {
		if nearby(fp.Point, point) {
			matches = append(matches, fp)
		}
	}
	return matches
}

// All returns a snapshot copy of every stored fingerprint in insertion order.
func (s *Store) All() []types.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]types.Fingerprint(nil), s.fingerprints...)
}

// UniqueLocations returns one point per distinct stored (x,y) pair, using
// exact float equality, in first-seen order.
func (s *Store) UniqueLocations() []types.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[types.Point]struct{})
	var points []types.Point
	for _, fp := range s.fingerprints {
		if _, ok := seen[fp.Point]; ok {
			continue
		}
		seen[fp.Point] = struct{}{}
		points = append(points, fp.Point)
	}
	return points
}

// CountAt returns how many fingerprints were captured at exactly the given
// point. It pairs with UniqueLocations, which groups by the same exact
// equality, so per-location counts sum to the store total.
func (s *Store) CountAt(point types.Point) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, fp := range s.fingerprints {
		if fp.Point == point {
			n++
		}
	}
	return n
}

// Count returns the number of stored fingerprints.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.fingerprints)
}

// ExportCSV renders the full store as CSV, one row per (fingerprint, reading)
// pair. When targetSSID is set, each fingerprint is restricted to readings
// from that SSID; if the filter empties a record, all of its readings are
// exported instead so legacy data stays visible.
func (s *Store) ExportCSV(targetSSID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString(csvHeader)
	b.WriteByte('\n')

	for _, fp := range s.fingerprints {
		readings := fp.Readings
		if targetSSID != "" {
			var filtered []types.SignalReading
			for _, r := range fp.Readings {
				if r.SSID == targetSSID {
					filtered = append(filtered, r)
				}
			}
			if len(filtered) > 0 {
				readings = filtered
			}
		}

		for _, r := range readings {
			if strings.Contains(r.SSID, ",") || strings.Contains(r.Security, ",") {
				s.log.WithField("bssid", r.BSSID).Warn("SSID or security string contains a comma; CSV row will be malformed")
			}
			fmt.Fprintf(&b, "%g,%g,%d,%s,%s,%s,%d,%d\n",
				fp.Point.X, fp.Point.Y, fp.CapturedAt,
				r.SSID, r.BSSID, r.Security, r.FrequencyMHz, r.SignalDbm)
		}
	}

	return b.String()
}

// save persists the current snapshot, logging instead of propagating errors.
// Callers must hold s.mu.
func (s *Store) save() {
	if err := s.persist(); err != nil {
		s.log.WithError(err).Error("Failed to save fingerprint store")
	}
}

// persist writes the full snapshot to a temp file in the store directory and
// renames it into place, so a failed write leaves the previous file intact.
// Callers must hold s.mu.
func (s *Store) persist() error {
	data, err := json.Marshal(s.fingerprints)
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprints: %w", err)
	}
	if s.fingerprints == nil {
		data = []byte("[]")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// load reads the backing file into memory. Any failure falls back to an
// empty store; malformed records are dropped individually.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Error("Failed to read fingerprint store, starting empty")
		}
		return
	}

	var loaded []types.Fingerprint
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log.WithError(err).Error("Failed to parse fingerprint store, starting empty")
		return
	}

	valid := loaded[:0]
	dropped := 0
	for _, fp := range loaded {
		if validFingerprint(fp) {
			valid = append(valid, fp)
		} else {
			dropped++
		}
	}

	s.fingerprints = valid
	if dropped > 0 {
		s.log.WithFields(logrus.Fields{
			"dropped": dropped,
			"kept":    len(valid),
		}).Warn("Dropped malformed fingerprint records on load")
	}
}

// validFingerprint rejects records that violate the data invariants: the
// point must lie in the unit square and no reading may claim a positive dBm.
func validFingerprint(fp types.Fingerprint) bool {
	if !fp.Point.InBounds() {
		return false
	}
	for _, r := range fp.Readings {
		if r.SignalDbm > 0 {
			return false
		}
	}
	return true
}

func nearby(a, b types.Point) bool {
	return math.Abs(a.X-b.X) < ProximityEpsilon && math.Abs(a.Y-b.Y) < ProximityEpsilon
}
