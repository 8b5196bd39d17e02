package config

import (
	"github.com/spf13/pflag"
)

// HistoryConfig holds configuration for the history command.
type HistoryConfig struct {
	In       string
	User     string
	Limit    int
	Out      string
	LogLevel string
}

// LoadHistory merges config file, environment variables, and flags into HistoryConfig.
func LoadHistory(cfgFile string, flags *pflag.FlagSet) (HistoryConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"in":        "./data/typed_events.jsonl",
		"log-level": "info",
	})
	if err != nil {
		return HistoryConfig{}, err
	}

	return HistoryConfig{
		In:       v.GetString("in"),
		User:     v.GetString("user"),
		Limit:    v.GetInt("limit"),
		Out:      v.GetString("out"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// InspectConfig holds configuration for the inspect command.
type InspectConfig struct {
	RPCURL   string
	Pool     string
	User     string
	Block    uint64
	LogLevel string
}

// LoadInspect merges config file, environment variables, and flags into InspectConfig.
func LoadInspect(cfgFile string, flags *pflag.FlagSet) (InspectConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"log-level": "info",
	})
	if err != nil {
		return InspectConfig{}, err
	}

	return InspectConfig{
		RPCURL:   v.GetString("rpc"),
		Pool:     v.GetString("pool"),
		User:     v.GetString("user"),
		Block:    v.GetUint64("block"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
