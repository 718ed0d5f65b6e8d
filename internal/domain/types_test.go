package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestPatronageEvent_Valid(t *testing.T) {
	base := func() PatronageEvent {
		return PatronageEvent{
			Chain:           ChainEthereumMainnet,
			ContractAddress: "0xb602c0bbfab973422b91c8dfc8302b7b47550fc0",
			TxHash:          "0xabc",
			BlockNumber:     11817709,
			Timestamp:       time.Unix(1612000000, 0),
		}
	}

	tests := []struct {
		name     string
		mutate   func(e *PatronageEvent)
		expected bool
	}{
		{
			name: "valid mint",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindMint
				e.FromAddress = strPtr(ETHEREUM_ZERO_ADDRESS)
				e.ToAddress = strPtr("0xb602c0bbfab973422b91c8dfc8302b7b47550fc0")
			},
			expected: true,
		},
		{
			name: "mint from non-zero sender",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindMint
				e.FromAddress = strPtr("0x1111111111111111111111111111111111111111")
				e.ToAddress = strPtr("0xb602c0bbfab973422b91c8dfc8302b7b47550fc0")
			},
			expected: false,
		},
		{
			name: "transfer without recipient",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindTransfer
				e.FromAddress = strPtr("0x1111111111111111111111111111111111111111")
			},
			expected: false,
		},
		{
			name: "valid buy",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindBuy
				e.Account = strPtr("0x1111111111111111111111111111111111111111")
				e.Amount = strPtr("1000000000000000000")
			},
			expected: true,
		},
		{
			name: "buy with malformed price",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindBuy
				e.Account = strPtr("0x1111111111111111111111111111111111111111")
				e.Amount = strPtr("1e18")
			},
			expected: false,
		},
		{
			name: "valid collection",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindCollection
				e.Amount = strPtr("42")
			},
			expected: true,
		},
		{
			name: "negative collection",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindCollection
				e.Amount = strPtr("-1")
			},
			expected: false,
		},
		{
			name: "foreclosure from zero owner",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindForeclosure
				e.Account = strPtr(ETHEREUM_ZERO_ADDRESS)
			},
			expected: false,
		},
		{
			name: "unknown chain",
			mutate: func(e *PatronageEvent) {
				e.Kind = EventKindPriceChange
				e.Amount = strPtr("1")
				e.Chain = "tezos:mainnet"
			},
			expected: false,
		},
		{
			name: "unknown kind",
			mutate: func(e *PatronageEvent) {
				e.Kind = "burn"
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base()
			tt.mutate(&e)
			assert.Equal(t, tt.expected, e.Valid())
		})
	}
}

func TestPatronageEvent_AmountValue(t *testing.T) {
	e := PatronageEvent{Amount: strPtr("123456789012345678901234567890")}
	v, err := e.AmountValue()
	require.NoError(t, err)
	expected, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, 0, expected.Cmp(v))

	e.Amount = nil
	_, err = e.AmountValue()
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestPatronageEvent_Before(t *testing.T) {
	a := &PatronageEvent{BlockNumber: 10, LogIndex: 5}
	b := &PatronageEvent{BlockNumber: 10, LogIndex: 6}
	c := &PatronageEvent{BlockNumber: 11, LogIndex: 0}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
	assert.False(t, a.Before(a))
}

func TestTransferEventKind(t *testing.T) {
	assert.Equal(t, EventKindMint, TransferEventKind(ETHEREUM_ZERO_ADDRESS))
	assert.Equal(t, EventKindTransfer, TransferEventKind("0x1111111111111111111111111111111111111111"))
}

func TestNewSteward_SelfHeld(t *testing.T) {
	s := NewSteward("0xabc")
	assert.Equal(t, "0xabc", s.CurrentPatron)
	assert.Equal(t, "0xabc", s.PreviousPatron)
	assert.True(t, s.InForeclosure())

	c := s.Clone()
	c.TotalCollected.SetInt64(5)
	assert.Equal(t, int64(0), s.TotalCollected.Int64())
}

func TestChain_EIP155ChainID(t *testing.T) {
	id, err := ChainEthereumMainnet.EIP155ChainID()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = ChainEthereumSepolia.EIP155ChainID()
	assert.NoError(t, err)
	assert.Equal(t, int64(11155111), id)

	_, err = Chain("tezos:mainnet").EIP155ChainID()
	assert.Error(t, err)

	_, err = Chain("eip155:abc").EIP155ChainID()
	assert.Error(t, err)
}
