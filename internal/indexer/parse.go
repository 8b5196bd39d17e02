package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddresses converts hex strings into addresses, skipping blanks and repeats.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	seen := make(map[common.Address]struct{}, len(inputs))
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addr := common.HexToAddress(input)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseEventTopics resolves pool event names (TokensSwapped, TokensRedeemed) through resolve and
// accepts raw 0x-prefixed topic0 hashes as they are. Order is kept.
func ParseEventTopics(inputs []string, resolve func(name string) (common.Hash, error)) ([]common.Hash, error) {
	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "0x") {
			topic, err := resolve(input)
			if err != nil {
				return nil, err
			}
			topics = append(topics, topic)
			continue
		}
		topic, err := parseTopic(input)
		if err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

func parseTopic(input string) (common.Hash, error) {
	data, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid topic0 %s: %w", input, err)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("topic0 must be %d bytes: %s", common.HashLength, input)
	}
	return common.BytesToHash(data), nil
}
