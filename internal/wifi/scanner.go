package wifi

import (
	"context"
	"fmt"
	"time"

	"github.com/mdlayher/wifi"
	"github.com/sirupsen/logrus"

	"github.com/wifiloc/wifiloc/internal/types"
)

// Scanner discovers nearby access points through the nl80211/netlink
// interface and converts them to signal readings for the positioning engine.
type Scanner struct {
	client *wifi.Client
	log    *logrus.Logger
}

// NewScanner creates a new WiFi scanner instance.
func NewScanner(logger *logrus.Logger) (*Scanner, error) {
	client, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WiFi client: %w", err)
	}

	return &Scanner{
		client: client,
		log:    logger,
	}, nil
}

// Close closes the WiFi scanner and cleans up resources.
func (s *Scanner) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ValidateInterface checks that at least one WiFi interface is available.
func (s *Scanner) ValidateInterface() error {
	interfaces, err := s.client.Interfaces()
	if err != nil {
		return fmt.Errorf("failed to get WiFi interfaces: %w", err)
	}
	if len(interfaces) == 0 {
		return fmt.Errorf("no WiFi interfaces available")
	}

	for _, ifi := range interfaces {
		s.log.WithFields(logrus.Fields{
			"name": ifi.Name,
			"type": ifi.Type.String(),
		}).Debug("Available WiFi interface")
	}
	return nil
}

// Scan triggers a scan on every WiFi interface and returns the discovered
// access points as signal readings.
//
// nl80211 scan results do not carry a per-BSS RSSI; the only signal level
// available is the station info of the currently associated AP. Readings
// without a signal level are dropped rather than given a fabricated value,
// so live scans are best-effort and a scan file from an external collaborator
// remains the primary input for fingerprinting.
func (s *Scanner) Scan(ctx context.Context) ([]types.SignalReading, error) {
	interfaces, err := s.client.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get WiFi interfaces: %w", err)
	}
	if len(interfaces) == 0 {
		return nil, fmt.Errorf("no WiFi interfaces found")
	}

	var readings []types.SignalReading

	for _, ifi := range interfaces {
		s.log.WithField("interface", ifi.Name).Debug("Scanning WiFi interface")

		scanCtx, cancel := context.WithTimeout(ctx, 10*time.Second)

		if err := s.client.Scan(scanCtx, ifi); err != nil {
			s.log.WithError(err).WithField("interface", ifi.Name).Warn("Failed to scan interface, skipping")
			cancel()
			continue
		}

		// Give the scan a moment to complete before collecting results.
		select {
		case <-time.After(2 * time.Second):
		case <-scanCtx.Done():
			s.log.WithField("interface", ifi.Name).Warn("Scan timeout, trying to get partial results")
		}
		cancel()

		bssList, err := s.client.AccessPoints(ifi)
		if err != nil {
			s.log.WithError(err).WithField("interface", ifi.Name).Warn("Failed to get access points from interface")
			continue
		}

		signals := s.stationSignals(ifi)

		for _, bss := range bssList {
			bssid := bss.BSSID.String()
			if bssid == "" || bssid == "00:00:00:00:00:00" {
				continue
			}

			signal, ok := signals[bssid]
			if !ok {
				s.log.WithFields(logrus.Fields{
					"bssid": bssid,
					"ssid":  bss.SSID,
				}).Debug("No signal level available for AP, dropping reading")
				continue
			}

			readings = append(readings, types.SignalReading{
				SSID:         bss.SSID,
				BSSID:        bssid,
				Security:     "UNKNOWN", // nl80211 scan results carry no capability string
				FrequencyMHz: bss.Frequency,
				SignalDbm:    signal,
			})
		}
	}

	if len(readings) == 0 {
		return nil, fmt.Errorf("no access points with signal levels found in scan results")
	}

	s.log.WithField("readings", len(readings)).Info("WiFi scan completed")
	return readings, nil
}

// stationSignals maps the BSSIDs of associated stations to their signal
// level in dBm.
func (s *Scanner) stationSignals(ifi *wifi.Interface) map[string]int {
	signals := make(map[string]int)

	stations, err := s.client.StationInfo(ifi)
	if err != nil {
		s.log.WithError(err).WithField("interface", ifi.Name).Debug("No station info available")
		return signals
	}

	for _, station := range stations {
		if station.Signal != 0 {
			signals[station.HardwareAddr.String()] = station.Signal
		}
	}
	return signals
}
