package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DecodeConfig holds configuration for the decode command. Genesis seeds pool metadata for
// simulated logs so that no RPC is needed.
type DecodeConfig struct {
	RPCURL          string
	Genesis         string
	In              string
	Out             string
	Errors          string
	LogLevel        string
	Topic0Map       map[string]string
	IncludeLiveMeta bool
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"out":               "./data/typed_events.jsonl",
		"errors":            "./data/decode_errors.jsonl",
		"include-live-meta": false,
		"log-level":         "info",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		RPCURL:          v.GetString("rpc"),
		Genesis:         v.GetString("genesis"),
		In:              v.GetString("in"),
		Out:             v.GetString("out"),
		Errors:          v.GetString("errors"),
		LogLevel:        v.GetString("log-level"),
		Topic0Map:       topicMap(v, "topic0-map"),
		IncludeLiveMeta: v.GetBool("include-live-meta"),
	}

	return cfg, nil
}

// topicMap reads key=value pairs given either as a config-file map or as a comma-separated flag.
func topicMap(v *viper.Viper, key string) map[string]string {
	switch raw := v.Get(key).(type) {
	case nil:
		return map[string]string{}
	case string:
		return parsePairs(raw)
	default:
		return v.GetStringMapString(key)
	}
}

func parsePairs(input string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(input, ",") {
		k, val, ok := strings.Cut(pair, "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if !ok || k == "" || val == "" {
			continue
		}
		out[k] = val
	}
	return out
}
