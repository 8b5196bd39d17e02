package config

import (
	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Genesis     string
	Ops         string
	Out         string
	Errors      string
	StateFile   string
	StateName   string
	PGDSN       string
	Resume      bool
	MetricsFile string
	LogLevel    string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"out":        "./data/logs.jsonl",
		"errors":     "./data/op_errors.jsonl",
		"state-name": "ledger",
		"resume":     true,
		"log-level":  "info",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		Genesis:     v.GetString("genesis"),
		Ops:         v.GetString("ops"),
		Out:         v.GetString("out"),
		Errors:      v.GetString("errors"),
		StateFile:   v.GetString("state-file"),
		StateName:   v.GetString("state-name"),
		PGDSN:       v.GetString("pg-dsn"),
		Resume:      v.GetBool("resume"),
		MetricsFile: v.GetString("metrics-file"),
		LogLevel:    v.GetString("log-level"),
	}, nil
}
