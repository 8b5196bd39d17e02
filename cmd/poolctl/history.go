package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"royaltyPool/internal/config"
	"royaltyPool/internal/history"
	"royaltyPool/internal/storage"
)

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadHistory(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	txs, err := history.Load(cfg.In, history.Options{User: cfg.User, Limit: cfg.Limit})
	if err != nil {
		return err
	}

	if cfg.Out == "" {
		enc := json.NewEncoder(os.Stdout)
		for _, tx := range txs {
			if err := enc.Encode(tx); err != nil {
				return fmt.Errorf("write history: %w", err)
			}
		}
	} else {
		writer, err := storage.NewJSONLWriter(cfg.Out, false)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			if err := writer.Write(tx); err != nil {
				writer.Close()
				return err
			}
		}
		if err := writer.Close(); err != nil {
			return err
		}
	}

	logger.Info("history complete",
		zap.String("in", cfg.In),
		zap.String("user", cfg.User),
		zap.Int("rows", len(txs)),
	)
	return nil
}
