package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation. Window and recompute-from are parsed at
// load time.
type AggregateConfig struct {
	RPCURL        string
	Input         string
	PGDSN         string
	WindowSeconds uint64
	BatchSize     int
	StateFile     string
	StateName     string
	RecomputeFrom uint64
	LogLevel      string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"batch-size": 1000,
		"log-level":  "info",
		"window":     "5m",
		"state-name": "aggregate",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	cfg := AggregateConfig{
		RPCURL:    v.GetString("rpc"),
		Input:     v.GetString("in"),
		PGDSN:     v.GetString("pg-dsn"),
		BatchSize: v.GetInt("batch-size"),
		StateFile: v.GetString("state-file"),
		StateName: v.GetString("state-name"),
		LogLevel:  v.GetString("log-level"),
	}
	if cfg.Input == "" {
		return AggregateConfig{}, fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return AggregateConfig{}, fmt.Errorf("pg dsn is required")
	}
	if cfg.BatchSize <= 0 {
		return AggregateConfig{}, fmt.Errorf("batch size must be greater than zero")
	}
	if cfg.WindowSeconds, err = ParseWindow(v.GetString("window")); err != nil {
		return AggregateConfig{}, err
	}
	if cfg.RecomputeFrom, err = ParseTimestamp(v.GetString("recompute-from")); err != nil {
		return AggregateConfig{}, fmt.Errorf("parse recompute-from: %w", err)
	}
	return cfg, nil
}

// ParseWindow parses a window duration into whole seconds.
func ParseWindow(input string) (uint64, error) {
	window, err := time.ParseDuration(strings.TrimSpace(input))
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", input, err)
	}
	if window < time.Second {
		return 0, fmt.Errorf("window must be at least 1s")
	}
	return uint64(window / time.Second), nil
}

// ParseTimestamp accepts unix seconds, RFC3339 or a bare date (UTC midnight). Blank means zero.
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseUint(input, 10, 64); err == nil {
		return secs, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if tm, err := time.Parse(layout, input); err == nil {
			if tm.Unix() < 0 {
				return 0, fmt.Errorf("timestamp before 1970: %s", input)
			}
			return uint64(tm.Unix()), nil
		}
	}
	return 0, fmt.Errorf("invalid timestamp %q", input)
}
