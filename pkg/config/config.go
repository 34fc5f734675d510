/*
Package config defines latticed's flat runtime configuration and populates it
from cobra persistent flags, the same convention the teacher's cmd/warren
uses for its own global flags.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/latticesearch/latticed/pkg/dump"
	"github.com/latticesearch/latticed/pkg/log"
)

// Config is latticed's complete runtime configuration.
type Config struct {
	// DataDir roots every on-disk path below: updates/data.mdb, the file
	// store, and the dumps directory all live under it.
	DataDir string

	// UpdateDBSizeBytes seeds the Update Store's initial bbolt mmap size.
	UpdateDBSizeBytes int

	// IndexDBSizeBytes and IndexerOpts are read from flags or the config
	// file but latticed does not interpret them, and serve does not pass
	// them to the resolver; latticed-migrate takes its own flags for both.
	IndexDBSizeBytes int

	IndexerOpts dump.IndexerOpts

	// RetentionGraceSeconds is the window a terminal DocumentAddition's
	// payload is kept before the writer (zero) or the Sweeper (non-zero)
	// reclaims it.
	RetentionGraceSeconds int

	NoAnalytics      bool
	ScheduleSnapshot string

	LogLevel  string
	LogJSON   bool
	MetricsAddr string
}

// UpdateDBPath is the conventional location of the Update Store's bbolt
// environment under DataDir.
func (c Config) UpdateDBPath() string {
	return filepath.Join(c.DataDir, "updates", "data.mdb")
}

// FileStoreDir is the conventional location of the Update File Store.
func (c Config) FileStoreDir() string {
	return filepath.Join(c.DataDir, "updates", "updates_files")
}

// DumpsDir is the conventional location dump archives are written to.
func (c Config) DumpsDir() string {
	return filepath.Join(c.DataDir, "dumps")
}

// fileConfig mirrors Config's fields for YAML config files (--config), kept
// separate so pkg/dump's IndexerOpts does not need to carry yaml tags of its
// own for the sake of this one loader.
type fileConfig struct {
	DataDir               string `yaml:"dataDir"`
	UpdateDBSizeBytes     int    `yaml:"updateDbSizeBytes"`
	IndexDBSizeBytes      int    `yaml:"indexDbSizeBytes"`
	IndexerMaxMemoryBytes int64  `yaml:"indexerMaxMemoryBytes"`
	IndexerMaxThreads     int    `yaml:"indexerMaxThreads"`
	RetentionGraceSeconds int    `yaml:"retentionGraceSeconds"`
	NoAnalytics           bool   `yaml:"noAnalytics"`
	ScheduleSnapshot      string `yaml:"scheduleSnapshot"`
	LogLevel              string `yaml:"logLevel"`
	LogJSON               bool   `yaml:"logJson"`
	MetricsAddr           string `yaml:"metricsAddr"`
}

// loadFile reads a YAML config file into a Config, used as FromFlags' base
// before any explicitly-passed flag overrides it.
func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, err
	}

	return Config{
		DataDir:               fc.DataDir,
		UpdateDBSizeBytes:     fc.UpdateDBSizeBytes,
		IndexDBSizeBytes:      fc.IndexDBSizeBytes,
		IndexerOpts:           dump.IndexerOpts{MaxMemoryBytes: fc.IndexerMaxMemoryBytes, MaxThreads: fc.IndexerMaxThreads},
		RetentionGraceSeconds: fc.RetentionGraceSeconds,
		NoAnalytics:           fc.NoAnalytics,
		ScheduleSnapshot:      fc.ScheduleSnapshot,
		LogLevel:              fc.LogLevel,
		LogJSON:               fc.LogJSON,
		MetricsAddr:           fc.MetricsAddr,
	}, nil
}

// RegisterFlags adds every config flag to cmd's persistent flag set, the
// way cmd/warren's root command registers --log-level and --log-json.
func RegisterFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Path to a YAML config file; explicit flags take precedence over its values")
	cmd.PersistentFlags().String("data-dir", "/var/lib/latticed", "Root directory for update and dump storage")
	cmd.PersistentFlags().Int("update-db-size", 0, "Initial bbolt mmap size for the update store, in bytes (0 uses bbolt's default growth)")
	cmd.PersistentFlags().Int("index-db-size", 0, "Initial size hint for the index resolver, in bytes (not used by serve)")
	cmd.PersistentFlags().Int64("indexer-max-memory", 0, "Maximum memory in bytes for the resolver's indexer, 0 is unbounded (not used by serve)")
	cmd.PersistentFlags().Int("indexer-max-threads", 0, "Maximum threads for the resolver's indexer, 0 is unbounded (not used by serve)")
	cmd.PersistentFlags().Int("retention-grace-seconds", 0, "Seconds a terminal update's payload is retained before reclamation (0 deletes it inline as soon as the update finishes)")
	cmd.PersistentFlags().Bool("no-analytics", false, "Disable anonymous usage analytics")
	cmd.PersistentFlags().String("schedule-snapshot", "", "Interval (Go duration, e.g. 1h) between automatic snapshots; empty disables scheduling")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cmd.PersistentFlags().String("metrics-addr", "127.0.0.1:9090", "Address the metrics and health HTTP endpoints listen on")
}

// FromFlags reads every registered flag off cmd into a Config. If --config
// names a YAML file, it is read first as the base config; any flag the user
// passed explicitly on the command line then overrides the corresponding
// field, so a config file can set defaults a one-off flag still overrides.
func FromFlags(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		MetricsAddr: "127.0.0.1:9090",
		DataDir:     "/var/lib/latticed",
		LogLevel:    "info",
	}
	if configPath != "" {
		if cfg, err = loadFile(configPath); err != nil {
			return Config{}, err
		}
	}

	overlayString(flags, "data-dir", &cfg.DataDir)
	overlayInt(flags, "update-db-size", &cfg.UpdateDBSizeBytes)
	overlayInt(flags, "index-db-size", &cfg.IndexDBSizeBytes)
	overlayInt64(flags, "indexer-max-memory", &cfg.IndexerOpts.MaxMemoryBytes)
	overlayInt(flags, "indexer-max-threads", &cfg.IndexerOpts.MaxThreads)
	overlayInt(flags, "retention-grace-seconds", &cfg.RetentionGraceSeconds)
	overlayBool(flags, "no-analytics", &cfg.NoAnalytics)
	overlayString(flags, "schedule-snapshot", &cfg.ScheduleSnapshot)
	overlayString(flags, "log-level", &cfg.LogLevel)
	overlayBool(flags, "log-json", &cfg.LogJSON)
	overlayString(flags, "metrics-addr", &cfg.MetricsAddr)

	return cfg, nil
}

// overlayString, overlayInt, overlayInt64 and overlayBool set *dst from name
// only when the user explicitly passed that flag, leaving the base value (a
// config file's, or FromFlags' built-in default when no file is given) alone
// otherwise.
func overlayString(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Changed(name) {
		*dst, _ = flags.GetString(name)
	}
}

func overlayInt(flags *pflag.FlagSet, name string, dst *int) {
	if flags.Changed(name) {
		*dst, _ = flags.GetInt(name)
	}
}

func overlayInt64(flags *pflag.FlagSet, name string, dst *int64) {
	if flags.Changed(name) {
		*dst, _ = flags.GetInt64(name)
	}
}

func overlayBool(flags *pflag.FlagSet, name string, dst *bool) {
	if flags.Changed(name) {
		*dst, _ = flags.GetBool(name)
	}
}

// InitLogging configures pkg/log from cfg, mirroring cmd/warren's
// cobra.OnInitialize(initLogging) hook.
func (c Config) InitLogging() {
	log.Init(log.Config{
		Level:      log.Level(c.LogLevel),
		JSONOutput: c.LogJSON,
	})
}
