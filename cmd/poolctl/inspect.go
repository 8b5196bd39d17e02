package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"royaltyPool/internal/chain"
	"royaltyPool/internal/config"
	"royaltyPool/internal/ledgerlog"
	"royaltyPool/internal/model"
)

type accountReport struct {
	Address            string `json:"address"`
	ReserveBalance     string `json:"reserve_balance"`
	SecondaryBalance   string `json:"secondary_balance"`
	ReserveAllowance   string `json:"reserve_allowance"`
	SecondaryAllowance string `json:"secondary_allowance"`
}

type inspectReport struct {
	Pool            string         `json:"pool"`
	Meta            model.PoolMeta `json:"meta"`
	SecondarySupply string         `json:"secondary_supply"`
	Paused          bool           `json:"paused"`
	Account         *accountReport `json:"account,omitempty"`
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadInspect(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Pool) {
		return fmt.Errorf("invalid pool address: %q", cfg.Pool)
	}
	if cfg.User != "" && !common.IsHexAddress(cfg.User) {
		return fmt.Errorf("invalid user address: %q", cfg.User)
	}
	poolAddr := common.HexToAddress(cfg.Pool)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	report, err := inspectPool(ctx, chainClient, poolAddr, cfg.User, cfg.Block, logger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func inspectPool(ctx context.Context, caller ledgerlog.ContractCaller, poolAddr common.Address, user string, block uint64, logger *zap.Logger) (inspectReport, error) {
	meta, err := ledgerlog.FetchPoolMeta(ctx, caller, poolAddr, ledgerlog.NewTokenMetaCache(), logger)
	if err != nil {
		return inspectReport{}, fmt.Errorf("read pool tokens: %w", err)
	}
	reserve := common.HexToAddress(meta.ReserveToken.Address)
	secondary := common.HexToAddress(meta.SecondaryToken.Address)

	state, err := ledgerlog.FetchPoolState(ctx, caller, poolAddr, reserve, block)
	if err != nil {
		return inspectReport{}, fmt.Errorf("read pool state: %w", err)
	}
	meta.State = &state

	report := inspectReport{Pool: poolAddr.Hex(), Meta: meta}

	supply, err := ledgerlog.TotalSupply(ctx, caller, secondary)
	if err != nil {
		return inspectReport{}, fmt.Errorf("read secondary supply: %w", err)
	}
	report.SecondarySupply = supply.String()

	paused, err := ledgerlog.Paused(ctx, caller, secondary)
	if err != nil {
		logger.Warn("paused flag unavailable", zap.String("token", secondary.Hex()), zap.Error(err))
	}
	report.Paused = paused

	if user == "" {
		return report, nil
	}
	account := common.HexToAddress(user)
	acct := &accountReport{Address: account.Hex()}
	reads := []struct {
		dst   *string
		token common.Address
		spend bool
	}{
		{&acct.ReserveBalance, reserve, false},
		{&acct.SecondaryBalance, secondary, false},
		{&acct.ReserveAllowance, reserve, true},
		{&acct.SecondaryAllowance, secondary, true},
	}
	for _, read := range reads {
		var (
			value *big.Int
			err   error
		)
		if read.spend {
			value, err = ledgerlog.Allowance(ctx, caller, read.token, account, poolAddr)
		} else {
			value, err = ledgerlog.BalanceOf(ctx, caller, read.token, account, block)
		}
		if err != nil {
			return inspectReport{}, fmt.Errorf("read account %s: %w", read.token.Hex(), err)
		}
		*read.dst = value.String()
	}
	report.Account = acct
	return report, nil
}
