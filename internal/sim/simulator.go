package sim

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"royaltyPool/internal/access"
	"royaltyPool/internal/events"
	"royaltyPool/internal/ledgerlog"
	"royaltyPool/internal/model"
	"royaltyPool/internal/pool"
	"royaltyPool/internal/poolerr"
	"royaltyPool/internal/storage"
	"royaltyPool/internal/token"
)

// ErrorSink receives rejected operations.
type ErrorSink interface {
	Write(value interface{}) error
}

// RejectionObserver counts rejected operations by op and error code.
type RejectionObserver interface {
	ObserveRejection(op, code string)
}

// Config wires a simulator. Sink, Errors, Observer and Emitter are optional.
type Config struct {
	Genesis  Genesis
	RunID    string
	Sink     storage.LogSink
	Errors   ErrorSink
	Observer RejectionObserver
	Emitter  events.Emitter
	Logger   *zap.Logger
}

// Outcome describes one applied operation. Rejected holds the ledger error when the operation
// was refused; the ledger is unchanged in that case.
type Outcome struct {
	Seq      uint64
	Logs     int
	Rejected error
}

// Summary totals a run.
type Summary struct {
	Applied  int
	Rejected int
	Logs     int
	LastSeq  uint64
}

// Simulator applies scripted operations to a ledger and emits the pool logs they produce.
type Simulator struct {
	cfg      Config
	ledger   *Ledger
	recorder *events.Recorder
	encoder  *ledgerlog.Encoder
	logger   *zap.Logger
	runID    string
	seq      uint64
}

// New deploys the genesis ledger and returns a simulator positioned at sequence zero.
func New(ctx context.Context, cfg Config) (*Simulator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	recorder := &events.Recorder{}
	emitter := events.Fanout{recorder}
	if cfg.Emitter != nil {
		emitter = append(emitter, cfg.Emitter)
	}
	ledger, err := NewLedger(ctx, cfg.Genesis, emitter, logger)
	if err != nil {
		return nil, err
	}
	encoder, err := ledgerlog.NewEncoder(cfg.Genesis.ChainID, model.SourceSimulated)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		cfg:      cfg,
		ledger:   ledger,
		recorder: recorder,
		encoder:  encoder,
		logger:   logger.With(zap.String("run_id", runID)),
		runID:    runID,
	}, nil
}

func (s *Simulator) Ledger() *Ledger { return s.ledger }
func (s *Simulator) RunID() string   { return s.runID }
func (s *Simulator) Seq() uint64     { return s.seq }

// Resume restores snap and continues numbering after its last sequence.
func (s *Simulator) Resume(ctx context.Context, snap model.LedgerSnapshot) error {
	if err := s.ledger.Restore(ctx, snap); err != nil {
		return err
	}
	s.seq = snap.LastSeq
	s.logger.Info("resumed ledger",
		zap.String("from_run", snap.RunID),
		zap.Uint64("last_seq", snap.LastSeq),
	)
	return nil
}

// Snapshot captures the ledger at the current sequence.
func (s *Simulator) Snapshot(ctx context.Context) (model.LedgerSnapshot, error) {
	return s.ledger.Snapshot(ctx, s.runID, s.seq)
}

// Apply executes op. The returned error is reserved for sink failures; ledger rejections are
// reported in Outcome.Rejected and recorded to the error sink.
func (s *Simulator) Apply(ctx context.Context, op model.Operation) (Outcome, error) {
	s.seq++
	seq := s.seq
	s.recorder.Reset()

	calldata, err := s.execute(ctx, op)
	if err != nil {
		return Outcome{Seq: seq, Rejected: err}, s.reject(seq, op, err)
	}

	pos := s.position(seq, op, calldata)
	var records []model.LogRecord
	for _, evt := range s.recorder.Events() {
		record, ok, err := s.encoder.Encode(evt, pos)
		if err != nil {
			return Outcome{Seq: seq}, fmt.Errorf("encode seq %d: %w", seq, err)
		}
		if !ok {
			continue
		}
		records = append(records, record)
		pos.LogIndex++
	}
	if len(records) > 0 && s.cfg.Sink != nil {
		if err := s.cfg.Sink.PutLogBatch(ctx, records); err != nil {
			return Outcome{Seq: seq}, fmt.Errorf("write logs seq %d: %w", seq, err)
		}
	}
	s.logger.Debug("operation applied",
		zap.Uint64("seq", seq),
		zap.String("op", op.Op),
		zap.Int("logs", len(records)),
	)
	return Outcome{Seq: seq, Logs: len(records)}, nil
}

// Run applies ops in order until ctx is done or a sink fails.
func (s *Simulator) Run(ctx context.Context, ops []model.Operation) (Summary, error) {
	var summary Summary
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := s.tally(ctx, &summary, op); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// RunFile streams operations from a JSONL script.
func (s *Simulator) RunFile(ctx context.Context, path string) (Summary, error) {
	var summary Summary
	line := 0
	err := storage.ScanJSONL(path, func(data []byte) error {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		var op model.Operation
		if err := json.Unmarshal(data, &op); err != nil {
			return fmt.Errorf("parse operation line %d: %w", line, err)
		}
		return s.tally(ctx, &summary, op)
	})
	return summary, err
}

func (s *Simulator) tally(ctx context.Context, summary *Summary, op model.Operation) error {
	outcome, err := s.Apply(ctx, op)
	if err != nil {
		return err
	}
	summary.LastSeq = outcome.Seq
	if outcome.Rejected != nil {
		summary.Rejected++
		return nil
	}
	summary.Applied++
	summary.Logs += outcome.Logs
	return nil
}

func (s *Simulator) reject(seq uint64, op model.Operation, cause error) error {
	code := poolerr.CodeOf(cause)
	s.logger.Warn("operation rejected",
		zap.Uint64("seq", seq),
		zap.String("op", op.Op),
		zap.String("caller", op.Caller),
		zap.String("code", code),
		zap.Error(cause),
	)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveRejection(op.Op, code)
	}
	if s.cfg.Errors == nil {
		return nil
	}
	rec := model.OperationError{
		RunID: s.runID,
		Seq:   seq,
		Op:    op,
		Code:  code,
		Error: cause.Error(),
		At:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.cfg.Errors.Write(rec); err != nil {
		return fmt.Errorf("write operation error: %w", err)
	}
	return nil
}

// position places seq in a synthetic chain: one transaction per block, hashes derived from the
// run id so that reruns of the same script produce distinct transactions.
func (s *Simulator) position(seq uint64, op model.Operation, calldata []byte) ledgerlog.LogPosition {
	g := s.cfg.Genesis
	block := g.StartBlock + seq
	ts := g.StartTime + (seq-1)*g.BlockTime
	if op.Timestamp != 0 {
		ts = op.Timestamp
	}
	var seqBytes, blockBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	binary.BigEndian.PutUint64(blockBytes[:], block)
	return ledgerlog.LogPosition{
		BlockNumber: block,
		BlockHash:   crypto.Keccak256Hash([]byte(s.runID), blockBytes[:]),
		TxHash:      crypto.Keccak256Hash([]byte(s.runID), seqBytes[:], calldata),
		Timestamp:   ts,
	}
}

// execute performs op against the ledger and returns the calldata an equivalent transaction
// would carry.
func (s *Simulator) execute(ctx context.Context, op model.Operation) ([]byte, error) {
	caller, err := s.resolve(op.Caller)
	if err != nil {
		return nil, fmt.Errorf("caller: %w", err)
	}
	l := s.ledger
	kind := strings.ToLower(strings.TrimSpace(op.Op))

	switch kind {
	case model.OpApprove:
		tok, err := s.token(op.Token)
		if err != nil {
			return nil, err
		}
		spender, err := s.resolve(op.Target)
		if err != nil {
			return nil, fmt.Errorf("spender: %w", err)
		}
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		return encodeOp(op), tok.Approve(ctx, caller, spender, amount)

	case model.OpSwap, model.OpSwapReserve, model.OpSwapSecondary:
		direction, err := swapDirection(kind, op.Direction)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		if err := l.Pool.Swap(ctx, caller, amount, direction); err != nil {
			return nil, err
		}
		return ledgerlog.PackSwap(direction, amount)

	case model.OpQuote:
		direction, err := swapDirection(kind, op.Direction)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		q, err := l.Pool.Quote(ctx, direction, amount)
		if err != nil {
			return nil, err
		}
		s.logger.Info("quote",
			zap.String("direction", q.Direction.String()),
			zap.String("in", q.In.String()),
			zap.String("out", q.Out.String()),
			zap.String("royalty", q.Royalty.String()),
		)
		return encodeOp(op), nil

	case model.OpSetRate:
		rate, err := parseAmount(op.Amount)
		if err != nil {
			return nil, poolerr.Wrapf(poolerr.ErrInvalidRate, "%q", op.Amount)
		}
		if err := l.Pool.SetRate(ctx, caller, rate); err != nil {
			return nil, err
		}
		return ledgerlog.PackSetRate(rate)

	case model.OpWithdrawRoyalties:
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		if err := l.Pool.WithdrawRoyalties(ctx, caller, amount); err != nil {
			return nil, err
		}
		return ledgerlog.PackWithdrawRoyalties(amount)

	case model.OpGrantRole, model.OpRevokeRole:
		role, ok := access.ParseRole(op.Role)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", op.Role)
		}
		gate, err := l.gate(op.Target)
		if err != nil {
			return nil, err
		}
		account, err := s.resolve(op.Account)
		if err != nil {
			return nil, fmt.Errorf("account: %w", err)
		}
		if kind == model.OpGrantRole {
			return encodeOp(op), gate.Grant(caller, role, account)
		}
		return encodeOp(op), gate.Revoke(caller, role, account)

	case model.OpPause:
		return encodeOp(op), l.Secondary.Pause(ctx, caller)

	case model.OpUnpause:
		return encodeOp(op), l.Secondary.Unpause(ctx, caller)

	case model.OpTransfer:
		tok, err := s.token(op.Token)
		if err != nil {
			return nil, err
		}
		to, err := s.resolve(op.Account)
		if err != nil {
			return nil, fmt.Errorf("recipient: %w", err)
		}
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		return encodeOp(op), tok.Transfer(ctx, caller, to, amount)

	case model.OpFaucet:
		to, err := s.resolve(op.Account)
		if err != nil {
			return nil, fmt.Errorf("recipient: %w", err)
		}
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return nil, err
		}
		return encodeOp(op), l.Reserve.Faucet(ctx, to, amount)

	default:
		return nil, fmt.Errorf("unknown operation %q", op.Op)
	}
}

// resolve accepts a hex address or "pool".
func (s *Simulator) resolve(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, targetPool) {
		return s.ledger.Pool.Address(), nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, poolerr.Wrapf(poolerr.ErrInvalidRecipient, "not an address: %q", value)
	}
	return common.HexToAddress(value), nil
}

func (s *Simulator) token(name string) (*token.Token, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reserve", strings.ToLower(s.ledger.Reserve.Symbol()):
		return s.ledger.Reserve, nil
	case targetSecondary, strings.ToLower(s.ledger.Secondary.Symbol()):
		return s.ledger.Secondary.Token, nil
	default:
		return nil, fmt.Errorf("unknown token %q", name)
	}
}

func swapDirection(kind, value string) (pool.Direction, error) {
	switch kind {
	case model.OpSwapReserve:
		return pool.DirectionReserveToSecondary, nil
	case model.OpSwapSecondary:
		return pool.DirectionSecondaryToReserve, nil
	}
	return pool.ParseDirection(value)
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, poolerr.Wrapf(poolerr.ErrInvalidAmount, "%q", value)
	}
	return amount, nil
}

func encodeOp(op model.Operation) []byte {
	data, _ := json.Marshal(op)
	return data
}
