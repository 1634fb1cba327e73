package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/KostasCherv/lifi-fee-collector/internal/apperr"
	"github.com/KostasCherv/lifi-fee-collector/internal/chain/rpc"
	"github.com/KostasCherv/lifi-fee-collector/internal/domain/model"
)

// FeesCollectedTopic is the keccak256 hash of the event signature
// "FeesCollected(address,address,uint256,uint256)", used as topics[0]
// in both the eth_getLogs filter and the decode-time sanity check.
const FeesCollectedTopic = "0x28a87b6059180e46de5fb9ab35eb043e8fe00ab45afcc7789e3934ecbbcde3ea"

// DecodedEvent is the raw decode result, before the processor attaches
// a block timestamp and builds a model.FeeEvent.
type DecodedEvent struct {
	Token         string
	Integrator    string
	IntegratorFee string
	LifiFee       string
}

// DecodeFeesCollected decodes a FeesCollected log per the minimal ABI
// in spec.md §4.1: two indexed address topics (token, integrator)
// followed by two non-indexed uint256 words (integratorFee, lifiFee)
// packed into Data. It returns apperr.Decode on any shape mismatch;
// per spec.md §7 a single undecodable log is not fatal to the caller's
// window, it is skipped and counted against a per-window sanity
// threshold instead.
func DecodeFeesCollected(log *rpc.Log) (*DecodedEvent, error) {
	if len(log.Topics) != 3 {
		return nil, apperr.Decode(fmt.Sprintf("expected 3 topics (signature + 2 indexed args), got %d", len(log.Topics)), nil)
	}
	if !strings.EqualFold(log.Topics[0], FeesCollectedTopic) {
		return nil, apperr.Decode(fmt.Sprintf("unexpected event signature topic %s", log.Topics[0]), nil)
	}

	token, err := topicToAddress(log.Topics[1])
	if err != nil {
		return nil, apperr.Decode("decode token topic", err)
	}
	integrator, err := topicToAddress(log.Topics[2])
	if err != nil {
		return nil, apperr.Decode("decode integrator topic", err)
	}

	data := strings.TrimPrefix(log.Data, "0x")
	if len(data) != 128 {
		return nil, apperr.Decode(fmt.Sprintf("expected 128 hex chars of data (2 uint256 words), got %d", len(data)), nil)
	}

	integratorFee, ok := new(big.Int).SetString(data[0:64], 16)
	if !ok {
		return nil, apperr.Decode("decode integratorFee word", nil)
	}
	lifiFee, ok := new(big.Int).SetString(data[64:128], 16)
	if !ok {
		return nil, apperr.Decode("decode lifiFee word", nil)
	}

	normalizedToken, err := model.NormalizeAddress(token)
	if err != nil {
		return nil, apperr.Decode("normalize token", err)
	}
	normalizedIntegrator, err := model.NormalizeAddress(integrator)
	if err != nil {
		return nil, apperr.Decode("normalize integrator", err)
	}

	return &DecodedEvent{
		Token:         normalizedToken,
		Integrator:    normalizedIntegrator,
		IntegratorFee: integratorFee.String(),
		LifiFee:       lifiFee.String(),
	}, nil
}

// topicToAddress extracts a 20-byte address from a 32-byte indexed
// topic (an address argument is left-padded with 12 zero bytes).
func topicToAddress(topic string) (string, error) {
	raw := strings.TrimPrefix(topic, "0x")
	if len(raw) != 64 {
		return "", fmt.Errorf("expected 64 hex chars, got %d", len(raw))
	}
	return "0x" + raw[24:], nil
}
