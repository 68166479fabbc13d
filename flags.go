package certify

import (
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/pflag"
)

type AllFlags struct {
	logger.Flags

	ConfigFile  string
	Database    string
	FontRoots   []string
	Rasterizers []string
	Timeout     time.Duration
	CacheType   string
	Concurrency int
}

var Flags AllFlags = AllFlags{
	Flags: logger.Flags{
		Level:       "info",
		LogToStderr: true,
	},
}

// BindAllFlags adds the logging and configuration override flags to a pflag set (for Cobra)
func BindAllFlags(flags *pflag.FlagSet) *AllFlags {
	flags.CountVarP(&Flags.Flags.LevelCount, "loglevel", "v", "Increase logging level")
	flags.StringVar(&Flags.Flags.Level, "log-level", "info", "Set the default log level")
	flags.BoolVar(&Flags.Flags.JsonLogs, "json-logs", false, "Print logs in json format to stderr")
	flags.BoolVar(&Flags.Flags.ReportCaller, "report-caller", false, "Report log caller info")
	flags.BoolVar(&Flags.Flags.LogToStderr, "log-to-stderr", true, "Log to stderr instead of stdout")

	flags.StringVarP(&Flags.ConfigFile, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&Flags.Database, "db", "", "SQLite database path")
	flags.StringSliceVar(&Flags.FontRoots, "font-root", nil, "Directory searched for the certificate font (repeatable)")
	flags.StringSliceVar(&Flags.Rasterizers, "rasterizer", nil, "Primary rasterizers in order: rsvg, inkscape, playwright, none")
	flags.DurationVar(&Flags.Timeout, "rasterizer-timeout", 0, "Timeout for a single external rasterizer run")
	flags.StringVar(&Flags.CacheType, "cache", "", "Cache backend: memory, redis, none")
	flags.IntVar(&Flags.Concurrency, "concurrency", 0, "Parallel renders for batch rendering")
	return &Flags
}

// Apply overrides config settings with the flags that were given.
func (a AllFlags) Apply(config *Config) {
	if a.Database != "" {
		config.Database = a.Database
	}
	if len(a.FontRoots) > 0 {
		config.Fonts.Roots = a.FontRoots
	}
	if len(a.Rasterizers) > 0 {
		config.Rasterizers.Order = a.Rasterizers
	}
	if a.Timeout > 0 {
		config.Rasterizers.Timeout = a.Timeout
	}
	if a.CacheType != "" {
		config.Cache.Type = a.CacheType
	}
	if a.Concurrency > 0 {
		config.Concurrency = a.Concurrency
	}
}

// UseFlags configures logging and loads the config file with flag overrides applied.
func (a AllFlags) UseFlags() (Config, error) {
	logger.Configure(a.Flags)
	config, err := LoadConfig(a.ConfigFile)
	if err != nil {
		return config, err
	}
	a.Apply(&config)
	logger.Debugf("Using config:\n%s", config)
	return config, nil
}
