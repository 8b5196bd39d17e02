package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"royaltyPool/internal/model"
)

// Schema creates every table the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS pool_logs (
	chain_id      BIGINT NOT NULL,
	block_number  BIGINT NOT NULL,
	block_hash    TEXT NOT NULL,
	tx_hash       TEXT NOT NULL,
	tx_index      BIGINT NOT NULL,
	log_index     BIGINT NOT NULL,
	pool_address  TEXT NOT NULL,
	topics        TEXT[] NOT NULL,
	data          TEXT NOT NULL,
	block_ts      BIGINT NOT NULL,
	source        TEXT NOT NULL DEFAULT 'chain',
	ingested_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS pools (
	chain_id          BIGINT NOT NULL,
	pool_address      TEXT NOT NULL,
	reserve_token     TEXT NOT NULL,
	secondary_token   TEXT NOT NULL,
	first_seen_block  BIGINT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);

CREATE TABLE IF NOT EXISTS pool_window_metrics (
	chain_id             BIGINT NOT NULL,
	pool_address         TEXT NOT NULL,
	window_size_seconds  BIGINT NOT NULL,
	window_start_ts      TIMESTAMPTZ NOT NULL,
	window_end_ts        TIMESTAMPTZ NOT NULL,
	deposit_count        BIGINT NOT NULL,
	redeem_count         BIGINT NOT NULL,
	unique_users         BIGINT NOT NULL,
	reserve_in           NUMERIC NOT NULL,
	reserve_out          NUMERIC NOT NULL,
	secondary_minted     NUMERIC NOT NULL,
	secondary_burned     NUMERIC NOT NULL,
	royalty_accrued      NUMERIC NOT NULL,
	custody              NUMERIC,
	royalty_balance      NUMERIC,
	available_reserve    NUMERIC,
	rate                 NUMERIC,
	snapshot_method      TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
);

CREATE TABLE IF NOT EXISTS indexer_state (
	name               TEXT PRIMARY KEY,
	last_processed_ts  BIGINT NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_snapshots (
	name        TEXT PRIMARY KEY,
	snapshot    JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for pool logs, metrics and ledger snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts pool logs, ignoring logs already stored.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		source := log.Source
		if source == "" {
			source = model.SourceChain
		}
		batch.Queue(`
			INSERT INTO pool_logs (
				chain_id, block_number, block_hash, tx_hash, tx_index, log_index,
				pool_address, topics, data, block_ts, source, ingested_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(log.ChainID),
			int64(log.BlockNumber),
			log.BlockHash,
			log.TxHash,
			int64(log.TxIndex),
			int64(log.LogIndex),
			log.Address,
			log.Topics,
			log.Data,
			int64(log.Timestamp),
			source,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range logs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert pool log: %w", err)
		}
	}
	return nil
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, reserve_token, secondary_token, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				reserve_token = EXCLUDED.reserve_token,
				secondary_token = EXCLUDED.secondary_token,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.ReserveToken,
			pool.SecondaryToken,
			int64(pool.FirstSeenBlock),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				deposit_count, redeem_count, unique_users, reserve_in, reserve_out,
				secondary_minted, secondary_burned, royalty_accrued,
				custody, royalty_balance, available_reserve, rate, snapshot_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				deposit_count = EXCLUDED.deposit_count,
				redeem_count = EXCLUDED.redeem_count,
				unique_users = EXCLUDED.unique_users,
				reserve_in = EXCLUDED.reserve_in,
				reserve_out = EXCLUDED.reserve_out,
				secondary_minted = EXCLUDED.secondary_minted,
				secondary_burned = EXCLUDED.secondary_burned,
				royalty_accrued = EXCLUDED.royalty_accrued,
				custody = EXCLUDED.custody,
				royalty_balance = EXCLUDED.royalty_balance,
				available_reserve = EXCLUDED.available_reserve,
				rate = EXCLUDED.rate,
				snapshot_method = EXCLUDED.snapshot_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.DepositCount),
			int64(m.RedeemCount),
			int64(m.UniqueUsers),
			m.ReserveIn,
			m.ReserveOut,
			m.SecondaryMinted,
			m.SecondaryBurned,
			m.RoyaltyAccrued,
			m.Custody,
			m.RoyaltyBalance,
			m.AvailableReserve,
			m.Rate,
			m.SnapshotMethod,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

// LoadSnapshot returns the JSON ledger snapshot stored under name.
func (s *Store) LoadSnapshot(ctx context.Context, name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("snapshot name required")
	}
	var data []byte
	row := s.pool.QueryRow(ctx, `SELECT snapshot FROM ledger_snapshots WHERE name=$1`, name)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// SaveSnapshot upserts a JSON ledger snapshot under name.
func (s *Store) SaveSnapshot(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("snapshot name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_snapshots (name, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, updated_at = now()
	`, name, string(data))
	return err
}
