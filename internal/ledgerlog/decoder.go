package ledgerlog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"royaltyPool/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders. Caller may be nil when PoolMetaCache
// already holds every pool that will be decoded.
type DecodeContext struct {
	Context         context.Context
	Caller          ContractCaller
	PoolMetaCache   *PoolMetaCache
	TokenMetaCache  *TokenMetaCache
	Logger          *zap.Logger
	IncludeLiveMeta bool
}

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map maps extra topic0 hashes to TokensSwapped or TokensRedeemed, for pools deployed
	// with renamed events of the same layout.
	Topic0Map map[string]string
}

// PoolDecoder decodes TokensSwapped and TokensRedeemed logs.
type PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewPoolDecoder builds a pool decoder.
func NewPoolDecoder(cfg DecoderConfig) (*PoolDecoder, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := map[string]string{
		strings.ToLower(poolABI.Events[model.EventTokensSwapped].ID.Hex()):  model.EventTokensSwapped,
		strings.ToLower(poolABI.Events[model.EventTokensRedeemed].ID.Hex()): model.EventTokensRedeemed,
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &PoolDecoder{
		poolABI:     poolABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PoolDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}

	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}
	poolAddr := common.HexToAddress(log.Address)

	decoded, err := d.decodeExchange(name, log)
	if err != nil {
		return nil, err
	}

	poolMeta, err := getPoolMeta(ctx, poolAddr, log.BlockNumber)
	if err != nil {
		return nil, err
	}

	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    poolMeta,
		Source:      log.Source,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

func (d *PoolDecoder) decodeExchange(name string, log model.LogRecord) (model.ExchangeEventData, error) {
	event := d.poolABI.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.ExchangeEventData{}, err
	}

	var indexed struct {
		User common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.ExchangeEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.ExchangeEventData{}, err
	}
	if len(values) != 3 {
		return model.ExchangeEventData{}, fmt.Errorf("unexpected %s values: %d", name, len(values))
	}

	reserve, err := asBigInt(values[0])
	if err != nil {
		return model.ExchangeEventData{}, err
	}
	secondary, err := asBigInt(values[1])
	if err != nil {
		return model.ExchangeEventData{}, err
	}
	royalty, err := asBigInt(values[2])
	if err != nil {
		return model.ExchangeEventData{}, err
	}

	return model.ExchangeEventData{
		User:            indexed.User.Hex(),
		ReserveAmount:   reserve.String(),
		SecondaryAmount: secondary.String(),
		RoyaltyAmount:   royalty.String(),
	}, nil
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tokensswapped", "swapped", "deposit":
		return model.EventTokensSwapped
	case "tokensredeemed", "redeemed", "withdraw":
		return model.EventTokensRedeemed
	default:
		return ""
	}
}

func getPoolMeta(ctx DecodeContext, poolAddr common.Address, blockNumber uint64) (model.PoolMeta, error) {
	var meta model.PoolMeta
	var ok bool
	if ctx.PoolMetaCache != nil {
		meta, ok = ctx.PoolMetaCache.Get(poolAddr)
	}

	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}

	if !ok {
		if ctx.Caller == nil {
			return model.PoolMeta{}, fmt.Errorf("no metadata for pool %s and no rpc", poolAddr.Hex())
		}
		var err error
		meta, err = FetchPoolMeta(callCtx, ctx.Caller, poolAddr, ctx.TokenMetaCache, ctx.Logger)
		if err != nil {
			return model.PoolMeta{}, err
		}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(poolAddr, meta)
		}
	}

	if ctx.IncludeLiveMeta && ctx.Caller != nil {
		reserve := common.Address{}
		if common.IsHexAddress(meta.ReserveToken.Address) {
			reserve = common.HexToAddress(meta.ReserveToken.Address)
		}
		state, err := FetchPoolState(callCtx, ctx.Caller, poolAddr, reserve, blockNumber)
		if err == nil {
			meta.State = &state
		} else if ctx.Logger != nil {
			ctx.Logger.Debug("pool state call failed", zap.String("pool", poolAddr.Hex()), zap.Error(err))
		}
	}
	return meta, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
