package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config represents the filter configuration
type Config struct {
	// Filter settings
	Profile          string   `mapstructure:"profile"`           // predefined profile name
	ExcludePlatforms []string `mapstructure:"exclude_platforms"` // platform prefixes to drop
	IncludePlatforms []string `mapstructure:"include_platforms"` // platform prefixes to keep, drops all others
	NDBTypes         []int    `mapstructure:"ndb_types"`         // allowed NDB target types
	ExcludeTypes     []string `mapstructure:"exclude_types"`     // formats removed wholesale
	ProfilesPath     string   `mapstructure:"profiles_path"`     // extra profile YAML file or directory

	// Always-keep settings
	AlwaysKeep      []string `mapstructure:"always_keep"`       // case-insensitive name markers
	AlwaysKeepRegex []string `mapstructure:"always_keep_regex"` // name patterns

	// Processing settings
	Workers              int    `mapstructure:"workers"`                // files processed concurrently
	SigtoolPath          string `mapstructure:"sigtool_path"`           // sigtool binary
	KeepMalformedSamples int    `mapstructure:"keep_malformed_samples"` // rejected lines kept per file

	// Report settings
	ReportFormat string `mapstructure:"report_format"` // text, json, markdown
	OutputFile   string `mapstructure:"output_file"`   // report file path

	// History settings
	HistoryDB     string `mapstructure:"history_db"`     // sqlite run history, empty disables
	SkipUnchanged bool   `mapstructure:"skip_unchanged"` // skip when input and policy match the last run

	// Logging settings
	LogFile string `mapstructure:"log_file"` // rotating log file, empty disables

	// ConfigFile is the file the settings were read from, if any
	ConfigFile string `mapstructure:"-"`
}

// DefaultHistoryDB is the history location used when none is configured
const DefaultHistoryDB = "~/.clamjuice/history.db"

// ReportFormats lists the accepted report_format values
var ReportFormats = []string{"text", "json", "markdown", "md"}

// LoadConfig loads configuration from defaults, an optional config file and
// environment variables (CLAMJUICE_*). With an empty path $HOME/.clamjuice.yaml
// is used when it exists.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("profile", "")
	v.SetDefault("exclude_platforms", []string{})
	v.SetDefault("include_platforms", []string{})
	v.SetDefault("ndb_types", []int{})
	v.SetDefault("exclude_types", []string{})
	v.SetDefault("profiles_path", "")
	v.SetDefault("always_keep", []string{"eicar"})
	v.SetDefault("always_keep_regex", []string{})
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("sigtool_path", "sigtool")
	v.SetDefault("keep_malformed_samples", 20)
	v.SetDefault("report_format", "")
	v.SetDefault("output_file", "")
	v.SetDefault("history_db", DefaultHistoryDB)
	v.SetDefault("skip_unchanged", false)
	v.SetDefault("log_file", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			v.AddConfigPath(home)
			v.SetConfigName(".clamjuice")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path must exist, the default one is optional
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Read environment variables
	v.SetEnvPrefix("CLAMJUICE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.HistoryDB, &c.ProfilesPath, &c.LogFile, &c.OutputFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}
	return nil
}

// Validate checks values that cannot be corrected silently
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.KeepMalformedSamples < 0 {
		return fmt.Errorf("keep_malformed_samples must not be negative, got %d", c.KeepMalformedSamples)
	}
	if c.ReportFormat != "" && !isReportFormat(c.ReportFormat) {
		return fmt.Errorf("invalid report format %q (valid: text, json, markdown)", c.ReportFormat)
	}
	if c.SkipUnchanged && c.HistoryDB == "" {
		return errors.New("skip_unchanged requires history_db")
	}
	return nil
}

func isReportFormat(format string) bool {
	for _, f := range ReportFormats {
		if f == format {
			return true
		}
	}
	return false
}
