package ledger

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	require.NoError(t, err)
	return parsed
}

// contractLog builds the log the contract emits for name. indexed holds the
// topics after the event id; data holds the non-indexed fields in order.
func contractLog(t *testing.T, parsed abi.ABI, name string, indexed []common.Hash, data ...interface{}) types.Log {
	t.Helper()
	ev := parsed.Events[name]
	raw, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return types.Log{
		Topics:      append([]common.Hash{ev.ID}, indexed...),
		Data:        raw,
		TxHash:      common.HexToHash("0xfeed"),
		BlockNumber: 42,
	}
}

func unpackEvent(t *testing.T, parsed abi.ABI, name string, lg types.Log) Event {
	t.Helper()
	contract := bind.NewBoundContract(common.Address{}, parsed, nil, nil, nil)
	fields := make(map[string]interface{})
	require.NoError(t, contract.UnpackLogIntoMap(fields, name, lg))
	return decodeEvent(name, fields, lg)
}

func addrTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}

func TestEventInputsMatchContract(t *testing.T) {
	parsed := parsedABI(t)
	names := func(name string) []string {
		var out []string
		for _, in := range parsed.Events[name].Inputs {
			out = append(out, in.Name)
		}
		return out
	}
	assert.Equal(t, []string{"creditId", "producer", "renewableSourceType", "hydrogenAmount", "metadataHash", "timestamp"},
		names(EventCreditIssued))
	assert.Equal(t, []string{"creditId", "from", "to", "amount", "timestamp"}, names(EventCreditTransferred))
	assert.Equal(t, []string{"creditId", "retiredBy", "amount", "timestamp"}, names(EventCreditRetired))
}

func TestDecodeCreditIssued(t *testing.T) {
	parsed := parsedABI(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lg := contractLog(t, parsed, EventCreditIssued,
		[]common.Hash{common.BigToHash(big.NewInt(7)), addrTopic(producerAddr)},
		"Solar", big.NewInt(1000), "0xabc", big.NewInt(at.Unix()))

	e := unpackEvent(t, parsed, EventCreditIssued, lg)
	assert.Equal(t, EventCreditIssued, e.Name)
	assert.Equal(t, int64(7), e.CreditID)
	assert.Equal(t, producerAddr, e.To)
	assert.Empty(t, e.From)
	assert.Equal(t, "Solar", e.SourceType)
	assert.Equal(t, int64(1000), e.HydrogenAmount)
	assert.Equal(t, "0xabc", e.MetadataHash)
	assert.Zero(t, e.Amount)
	assert.Equal(t, at, e.Timestamp)
	assert.Equal(t, lg.TxHash.Hex(), e.TxHash)
	assert.Equal(t, uint64(42), e.BlockNumber)
}

func TestDecodeCreditTransferred(t *testing.T) {
	parsed := parsedABI(t)
	lg := contractLog(t, parsed, EventCreditTransferred,
		[]common.Hash{common.BigToHash(big.NewInt(3)), addrTopic(producerAddr), addrTopic(consumerAddr)},
		big.NewInt(40), big.NewInt(1700000000))

	e := unpackEvent(t, parsed, EventCreditTransferred, lg)
	assert.Equal(t, int64(3), e.CreditID)
	assert.Equal(t, producerAddr, e.From)
	assert.Equal(t, consumerAddr, e.To)
	assert.Equal(t, int64(40), e.Amount)
	assert.Zero(t, e.HydrogenAmount)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), e.Timestamp)
}

func TestDecodeCreditRetired(t *testing.T) {
	parsed := parsedABI(t)
	lg := contractLog(t, parsed, EventCreditRetired,
		[]common.Hash{common.BigToHash(big.NewInt(3)), addrTopic(consumerAddr)},
		big.NewInt(15), big.NewInt(1700000000))

	e := unpackEvent(t, parsed, EventCreditRetired, lg)
	assert.Equal(t, int64(3), e.CreditID)
	assert.Equal(t, consumerAddr, e.From)
	assert.Empty(t, e.To)
	assert.Equal(t, int64(15), e.Amount)
}

type revertData struct{}

func (revertData) Error() string { return "call failed" }
func (revertData) ErrorData() interface{} { return "0x08c379a0" }

func TestClassify(t *testing.T) {
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want error
	}{
		{"deadline", context.Background(), context.DeadlineExceeded, ErrTimeout},
		{"expired context", expired, errors.New("connection reset"), ErrTimeout},
		{"rpc data error", context.Background(), revertData{}, ErrRejected},
		{"revert message", context.Background(), errors.New("execution reverted: insufficient balance"), ErrRejected},
		{"transport", context.Background(), errors.New("dial tcp: connection refused"), ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.ctx, tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.err.Error())
		})
	}
}

func TestNewEthereumClientValidatesConfig(t *testing.T) {
	key := "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	_, err := NewEthereumClient(EthereumConfig{ContractAddress: "nope", OperatorKey: key})
	assert.ErrorContains(t, err, "invalid contract address")

	_, err = NewEthereumClient(EthereumConfig{ContractAddress: producerAddr, OperatorKey: "0xzz"})
	assert.ErrorContains(t, err, "parse operator key")

	c, err := NewEthereumClient(EthereumConfig{ContractAddress: producerAddr, OperatorKey: key})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(producerAddr), c.address)
}
