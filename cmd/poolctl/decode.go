package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"royaltyPool/internal/chain"
	"royaltyPool/internal/config"
	"royaltyPool/internal/ledgerlog"
	"royaltyPool/internal/model"
	"royaltyPool/internal/sim"
	"royaltyPool/internal/storage"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" && cfg.Genesis == "" {
		return fmt.Errorf("rpc url or genesis is required")
	}
	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decodeCtx := ledgerlog.DecodeContext{
		Context:         ctx,
		PoolMetaCache:   ledgerlog.NewPoolMetaCache(),
		TokenMetaCache:  ledgerlog.NewTokenMetaCache(),
		Logger:          logger,
		IncludeLiveMeta: cfg.IncludeLiveMeta,
	}

	if cfg.Genesis != "" {
		genesis, err := sim.LoadGenesis(cfg.Genesis)
		if err != nil {
			return err
		}
		decodeCtx.PoolMetaCache.Set(genesis.PoolAddress(), genesis.PoolMeta())
	}
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		decodeCtx.Caller = chainClient
	} else {
		decodeCtx.IncludeLiveMeta = false
	}

	decoder, err := ledgerlog.NewPoolDecoder(ledgerlog.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("genesis", cfg.Genesis),
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Bool("include_live_meta", decodeCtx.IncludeLiveMeta),
	)

	var total, deposits, redeems, duplicates, skipped, failed int
	seen := make(map[string]struct{})
	err = storage.ScanJSONL(cfg.In, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			writeDecodeError(errWriter, model.DecodeError{Error: err.Error()})
			return nil
		}
		if len(record.Topics) == 0 {
			failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, fmt.Errorf("missing topic0")))
			return nil
		}
		if record.Removed || !decoder.CanDecode(record.Topic0()) {
			skipped++
			return nil
		}

		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, err))
			return nil
		}
		key := event.Key()
		if _, ok := seen[key]; ok {
			duplicates++
			return nil
		}
		seen[key] = struct{}{}
		if err := outWriter.Write(event); err != nil {
			return err
		}
		if event.IsDeposit() {
			deposits++
		} else {
			redeems++
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("deposits", deposits),
		zap.Int("redeems", redeems),
		zap.Int("duplicates", duplicates),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	return model.DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      record.Topic0(),
		Error:       err.Error(),
	}
}

func writeDecodeError(writer *storage.JSONLWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
