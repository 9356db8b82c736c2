package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wifiloc/wifiloc/internal/positioning"
	"github.com/wifiloc/wifiloc/internal/store"
	"github.com/wifiloc/wifiloc/internal/types"
	"github.com/wifiloc/wifiloc/internal/wifi"
)

var (
	version = "dev"
	cfgFile string
	verbose bool
	debug   bool
	format  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wifiloc",
	Short: "Indoor positioning from WiFi signal fingerprints",
	Long: `wifiloc estimates a device's position on a mapped indoor space from WiFi
signal-strength fingerprints.

Reference fingerprints are captured at known map points (normalized x,y in
[0,1]) and stored locally. A later scan is matched against them with a
weighted k-nearest-neighbor algorithm to estimate the current position with
a confidence score.`,
	Version: version,
	Example: `  # Capture a fingerprint at a map point from a scan file
  wifiloc capture --x 0.25 --y 0.40 --input scan.json

  # Estimate the current position
  wifiloc locate --input scan.json

  # Export all collected data as CSV
  wifiloc export -o fingerprints.csv`,
}

// captureCmd stores a fingerprint at a chosen map point
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a WiFi fingerprint at a known map point",
	Long: `Capture the current WiFi environment and store it as a reference
fingerprint at the given normalized map coordinates.

Scan results are read from a JSON scan file (--input, "-" for stdin) or
gathered live with --auto-scan. A scan file is a JSON array of readings:

  [{"ssid":"...","bssid":"aa:bb:cc:dd:ee:ff","security":"[WPA2]","frequency":5180,"rssi":-52}]`,
	RunE: captureRun,
	Example: `  # Capture at the center of the map from a scan file
  wifiloc capture --x 0.5 --y 0.5 --input scan.json

  # Capture from a live scan
  wifiloc capture --x 0.5 --y 0.5 --auto-scan`,
}

// locateCmd estimates the current position
var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Estimate the current map position from a WiFi scan",
	Long: `Match a WiFi scan against the stored fingerprints and estimate the most
likely map position.

"No estimate available" is a normal outcome, not an error: it means the scan
held no usable access points or no stored location matched well enough.`,
	RunE: locateRun,
	Example: `  # Locate from a scan file
  wifiloc locate --input scan.json

  # Locate from a live scan, JSON output
  wifiloc locate --auto-scan --format json

  # Restrict matching to one trusted network
  wifiloc locate --input scan.json --target-ssid CORP_5G`,
}

// scanCmd performs a live WiFi scan
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby WiFi networks",
	Long: `Scan for nearby WiFi networks using the system's WiFi interface via
nl80211/netlink.

Note: nl80211 scan results carry no per-network signal level; only the
currently associated access point has one. Networks without a signal level
are omitted, so prefer scan files from a platform scanner for fingerprinting.`,
	RunE: scanRun,
	Example: `  # Scan and display nearby networks
  wifiloc scan

  # Emit a scan file for capture/locate
  wifiloc scan --format scanfile > scan.json

  # Include rough distance estimates
  wifiloc scan --distances`,
}

// spotsCmd lists the sampled locations
var spotsCmd = &cobra.Command{
	Use:   "spots",
	Short: "List the sampled map locations",
	RunE:  spotsRun,
}

// statusCmd summarizes the store
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fingerprint store status",
	RunE:  statusRun,
}

// deleteCmd removes fingerprints near a point or by record ID
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete fingerprints near a map point or by record ID",
	Long: `Delete stored fingerprints. With --x/--y, every fingerprint within the
proximity epsilon (0.05 on both axes) of the point is removed. With --id, a
single record is removed.`,
	RunE: deleteRun,
	Example: `  # Delete everything sampled around a point
  wifiloc delete --x 0.5 --y 0.5

  # Delete one record
  wifiloc delete --id 6aa7ff1e-6f6b-4a0c-93c2-1f4de1b1f8a2`,
}

// wipeCmd clears the whole store
var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete ALL stored fingerprints",
	RunE:  wipeRun,
}

// exportCmd renders the store as CSV
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all fingerprint data as CSV",
	Long: `Export every (fingerprint, reading) pair as CSV with the header
x,y,timestamp,ssid,bssid,security,frequency,rssi.

When a target SSID is configured, each fingerprint is restricted to readings
from that SSID, falling back to all of its readings when none match.`,
	RunE: exportRun,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/wifiloc/config.yaml or ~/.config/wifiloc/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug output")
	rootCmd.PersistentFlags().String("store", "", "fingerprint store file")

	// Capture command flags
	captureCmd.Flags().Float64("x", -1, "normalized x coordinate in [0,1] (required)")
	captureCmd.Flags().Float64("y", -1, "normalized y coordinate in [0,1] (required)")
	captureCmd.Flags().StringP("input", "i", "", "scan results file (JSON array, \"-\" for stdin)")
	captureCmd.Flags().Bool("auto-scan", false, "scan live instead of reading a scan file")

	// Locate command flags
	locateCmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json)")
	locateCmd.Flags().StringP("input", "i", "", "scan results file (JSON array, \"-\" for stdin)")
	locateCmd.Flags().Bool("auto-scan", false, "scan live instead of reading a scan file")
	locateCmd.Flags().String("target-ssid", "", "strict mode: only use APs from this SSID")
	locateCmd.Flags().Int("max-aps", 20, "maximum number of APs used for matching")
	locateCmd.Flags().Int("signal-floor", -85, "minimum usable signal strength (dBm)")
	locateCmd.Flags().Int("min-matched-aps", 3, "minimum shared APs to accept a candidate location")
	locateCmd.Flags().Float64("min-score", 0.35, "minimum similarity score to accept a candidate location")

	// Scan command flags
	scanCmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json, scanfile)")
	scanCmd.Flags().Bool("distances", false, "show rough path-loss distance estimates")

	// Delete command flags
	deleteCmd.Flags().Float64("x", -1, "normalized x coordinate of the point to clear")
	deleteCmd.Flags().Float64("y", -1, "normalized y coordinate of the point to clear")
	deleteCmd.Flags().String("id", "", "record ID to delete")

	// Wipe command flags
	wipeCmd.Flags().Bool("yes", false, "confirm deleting all fingerprints")

	// Export command flags
	exportCmd.Flags().StringP("output", "o", "", "write CSV to file instead of stdout")

	// Bind flags to viper
	if err := viper.BindPFlag("store.file", rootCmd.PersistentFlags().Lookup("store")); err != nil {
		panic(fmt.Sprintf("failed to bind store.file flag: %v", err))
	}
	if err := viper.BindPFlag("scan.target_ssid", locateCmd.Flags().Lookup("target-ssid")); err != nil {
		panic(fmt.Sprintf("failed to bind scan.target_ssid flag: %v", err))
	}
	if err := viper.BindPFlag("scan.max_aps", locateCmd.Flags().Lookup("max-aps")); err != nil {
		panic(fmt.Sprintf("failed to bind scan.max_aps flag: %v", err))
	}
	if err := viper.BindPFlag("scan.signal_floor", locateCmd.Flags().Lookup("signal-floor")); err != nil {
		panic(fmt.Sprintf("failed to bind scan.signal_floor flag: %v", err))
	}
	if err := viper.BindPFlag("scoring.min_matched_aps", locateCmd.Flags().Lookup("min-matched-aps")); err != nil {
		panic(fmt.Sprintf("failed to bind scoring.min_matched_aps flag: %v", err))
	}
	if err := viper.BindPFlag("scoring.min_score", locateCmd.Flags().Lookup("min-score")); err != nil {
		panic(fmt.Sprintf("failed to bind scoring.min_score flag: %v", err))
	}

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(spotsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(wipeCmd)
	rootCmd.AddCommand(exportCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Use XDG Base Directory specification
		configDir := xdg.ConfigHome + "/wifiloc"

		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("WIFILOC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults from types.DefaultConfig()
	defaultConfig := types.DefaultConfig()
	viper.SetDefault("store.file", defaultConfig.Store.File)
	viper.SetDefault("scan.target_ssid", defaultConfig.Scan.TargetSSID)
	viper.SetDefault("scan.max_aps", defaultConfig.Scan.MaxAPs)
	viper.SetDefault("scan.signal_floor", defaultConfig.Scan.SignalFloor)
	viper.SetDefault("scan.min_viable_aps", defaultConfig.Scan.MinViableAPs)
	viper.SetDefault("scoring.decay_constant", defaultConfig.Scoring.DecayConstant)
	viper.SetDefault("scoring.freq_bonus", defaultConfig.Scoring.FreqBonus)
	viper.SetDefault("scoring.sigmoid_mid", defaultConfig.Scoring.SigmoidMid)
	viper.SetDefault("scoring.sigmoid_slope", defaultConfig.Scoring.SigmoidSlope)
	viper.SetDefault("scoring.rarity_k", defaultConfig.Scoring.RarityK)
	viper.SetDefault("scoring.rarity_default", defaultConfig.Scoring.RarityDefault)
	viper.SetDefault("scoring.rarity_scale", defaultConfig.Scoring.RarityScale)
	viper.SetDefault("scoring.min_matched_aps", defaultConfig.Scoring.MinMatchedAPs)
	viper.SetDefault("scoring.min_score", defaultConfig.Scoring.MinScore)
	viper.SetDefault("scoring.deviation_scale", defaultConfig.Scoring.DeviationScale)
	viper.SetDefault("aggregation.relative_threshold", defaultConfig.Aggregation.RelativeThreshold)
	viper.SetDefault("aggregation.min_k", defaultConfig.Aggregation.MinK)
	viper.SetDefault("aggregation.max_k", defaultConfig.Aggregation.MaxK)
	viper.SetDefault("aggregation.exponent", defaultConfig.Aggregation.Exponent)
	viper.SetDefault("confidence.gap_weight", defaultConfig.Confidence.GapWeight)
	viper.SetDefault("confidence.cluster_weight", defaultConfig.Confidence.ClusterWeight)
	viper.SetDefault("confidence.match_count_weight", defaultConfig.Confidence.MatchCountWeight)
	viper.SetDefault("confidence.score_weight", defaultConfig.Confidence.ScoreWeight)
	viper.SetDefault("confidence.ap_count_weight", defaultConfig.Confidence.APCountWeight)
	viper.SetDefault("confidence.cluster_sensitivity", defaultConfig.Confidence.ClusterSensitivity)
	viper.SetDefault("confidence.target_match_count", defaultConfig.Confidence.TargetMatchCount)
	viper.SetDefault("confidence.target_ap_count", defaultConfig.Confidence.TargetAPCount)
	viper.SetDefault("confidence.score_scale", defaultConfig.Confidence.ScoreScale)
	viper.SetDefault("confidence.single_candidate", defaultConfig.Confidence.SingleCandidate)
	viper.SetDefault("confidence.floor", defaultConfig.Confidence.Floor)
	viper.SetDefault("confidence.ceiling", defaultConfig.Confidence.Ceiling)

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func setupLogger() *logrus.Logger {
	logger := logrus.New()

	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else if verbose {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	// Use structured logging for JSON output
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
		})
	}

	return logger
}

func loadConfig() (*types.Config, error) {
	var config types.Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// gatherReadings loads scan results from the --input file or, with
// --auto-scan, from a live scan.
func gatherReadings(cmd *cobra.Command, logger *logrus.Logger) ([]types.SignalReading, error) {
	input, _ := cmd.Flags().GetString("input")
	autoScan, _ := cmd.Flags().GetBool("auto-scan")

	switch {
	case input == "" && !autoScan:
		return nil, fmt.Errorf("no scan results provided (use --input or --auto-scan)")

	case input != "" && autoScan:
		return nil, fmt.Errorf("--input and --auto-scan are mutually exclusive")

	case autoScan:
		logger.Info("Scanning for nearby WiFi networks...")
		scanner, err := wifi.NewScanner(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create WiFi scanner: %w", err)
		}
		defer func() {
			if closeErr := scanner.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("Failed to close WiFi scanner")
			}
		}()
		return scanner.Scan(context.Background())

	case input == "-":
		return types.DecodeReadings(os.Stdin)

	default:
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("failed to open scan file: %w", err)
		}
		defer f.Close()
		return types.DecodeReadings(f)
	}
}

func pointFromFlags(cmd *cobra.Command) (types.Point, error) {
	x, _ := cmd.Flags().GetFloat64("x")
	y, _ := cmd.Flags().GetFloat64("y")

	point := types.Point{X: x, Y: y}
	if !point.InBounds() {
		return types.Point{}, fmt.Errorf("map point (%g, %g) is outside [0,1]x[0,1]", x, y)
	}
	return point, nil
}

func captureRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	point, err := pointFromFlags(cmd)
	if err != nil {
		return err
	}

	readings, err := gatherReadings(cmd, logger)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		return fmt.Errorf("scan results are empty, nothing to capture")
	}

	st := store.New(config.Store.File, logger)
	fp, err := st.Add(point, readings)
	if err != nil {
		return fmt.Errorf("failed to capture fingerprint: %w", err)
	}

	fmt.Printf("Captured fingerprint %s at (%.3f, %.3f) with %d readings\n",
		fp.ID, fp.Point.X, fp.Point.Y, len(fp.Readings))
	return nil
}

func locateRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	readings, err := gatherReadings(cmd, logger)
	if err != nil {
		return err
	}

	st := store.New(config.Store.File, logger)
	engine := positioning.NewEngine(st, config, logger)

	logger.WithFields(logrus.Fields{
		"readings":     len(readings),
		"fingerprints": st.Count(),
	}).Info("Estimating position")

	result := engine.Estimate(readings)
	return outputResult(result, format)
}

func outputResult(result *types.PositioningResult, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if result == nil {
			return encoder.Encode(map[string]any{"estimate": nil})
		}
		return encoder.Encode(map[string]any{"estimate": result})

	case "table":
		fallthrough
	default:
		if result == nil {
			fmt.Println("No estimate available")
			return nil
		}
		fmt.Printf("Estimated Position:\n")
		fmt.Printf("  X:           %.3f\n", result.Point.X)
		fmt.Printf("  Y:           %.3f\n", result.Point.Y)
		fmt.Printf("  Match score: %.3f\n", result.MatchScore)
		fmt.Printf("  Confidence:  %.1f%%\n", result.Confidence*100)
		fmt.Printf("  Matched APs: %d\n", result.MatchedAPs)
		fmt.Printf("  Candidates:  %d\n", result.CandidateCount)
		return nil
	}
}

func scanRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	scanner, err := wifi.NewScanner(logger)
	if err != nil {
		return fmt.Errorf("failed to create WiFi scanner: %w", err)
	}
	defer func() {
		if closeErr := scanner.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close WiFi scanner")
		}
	}()

	if err := scanner.ValidateInterface(); err != nil {
		return fmt.Errorf("WiFi interface validation failed: %w", err)
	}

	logger.Info("Scanning for nearby WiFi networks...")

	readings, err := scanner.Scan(context.Background())
	if err != nil {
		return fmt.Errorf("failed to scan WiFi networks: %w", err)
	}

	showDistances, _ := cmd.Flags().GetBool("distances")
	return outputScanResults(readings, format, showDistances)
}

func outputScanResults(readings []types.SignalReading, format string, showDistances bool) error {
	switch format {
	case "json", "scanfile":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(readings)

	case "table":
		fallthrough
	default:
		fmt.Printf("%-24s %-18s %-10s %-10s", "SSID", "BSSID", "Frequency", "RSSI")
		if showDistances {
			fmt.Printf(" %-10s", "Distance")
		}
		fmt.Println()
		fmt.Println(strings.Repeat("-", 66))

		for _, r := range readings {
			fmt.Printf("%-24s %-18s %-10d %-10s", r.SSID, r.BSSID, r.FrequencyMHz, fmt.Sprintf("%d dBm", r.SignalDbm))
			if showDistances {
				fmt.Printf(" %-10s", fmt.Sprintf("~%.1fm", positioning.EstimateDistance(r.SignalDbm)))
			}
			fmt.Println()
		}

		fmt.Printf("\nFound %d WiFi networks\n", len(readings))
		return nil
	}
}

func spotsRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(config.Store.File, logger)
	locations := st.UniqueLocations()

	if len(locations) == 0 {
		fmt.Println("No sampled locations")
		return nil
	}

	fmt.Printf("%-10s %-10s %-10s\n", "X", "Y", "Captures")
	fmt.Println(strings.Repeat("-", 32))
	for _, p := range locations {
		fmt.Printf("%-10.3f %-10.3f %-10d\n", p.X, p.Y, st.CountAt(p))
	}
	fmt.Printf("\n%d sampled locations, %d fingerprints total\n", len(locations), st.Count())
	return nil
}

func statusRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(config.Store.File, logger)
	fmt.Printf("Store file:        %s\n", st.Path())
	fmt.Printf("Fingerprints:      %d\n", st.Count())
	fmt.Printf("Sampled locations: %d\n", len(st.UniqueLocations()))
	if ssid := config.Scan.TargetSSID; ssid != "" {
		fmt.Printf("Target SSID:       %s (strict mode)\n", ssid)
	}
	return nil
}

func deleteRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(config.Store.File, logger)

	if id, _ := cmd.Flags().GetString("id"); id != "" {
		if !st.RemoveByID(id) {
			return fmt.Errorf("no fingerprint with ID %s", id)
		}
		fmt.Printf("Deleted fingerprint %s\n", id)
		return nil
	}

	point, err := pointFromFlags(cmd)
	if err != nil {
		return err
	}

	removed := st.RemoveNear(point)
	fmt.Printf("Deleted %d fingerprints near (%.3f, %.3f)\n", removed, point.X, point.Y)
	return nil
}

func wipeRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("refusing to delete all fingerprints without --yes")
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(config.Store.File, logger)
	if !st.WipeAll() {
		return fmt.Errorf("failed to persist wiped store")
	}

	fmt.Println("All fingerprints deleted")
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(config.Store.File, logger)
	csv := st.ExportCSV(config.Scan.TargetSSID)

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := os.WriteFile(output, []byte(csv), 0o644); err != nil {
			return fmt.Errorf("failed to write CSV file: %w", err)
		}
		fmt.Printf("Exported %d fingerprints to %s\n", st.Count(), output)
		return nil
	}

	fmt.Print(csv)
	return nil
}
