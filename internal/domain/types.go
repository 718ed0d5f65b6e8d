package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet ||
		chain == ChainEthereumSepolia
}

// EIP155ChainID returns the numeric chain id of a CAIP-2 eip155 chain
func (c Chain) EIP155ChainID() (int64, error) {
	ref, ok := strings.CutPrefix(string(c), "eip155:")
	if !ok {
		return 0, fmt.Errorf("%s is not an eip155 chain", c)
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid eip155 chain reference %q: %w", ref, err)
	}
	return id, nil
}

// EventKind represents the kind of patronage event
type EventKind string

const (
	EventKindMint        EventKind = "mint"
	EventKindTransfer    EventKind = "transfer"
	EventKindBuy         EventKind = "buy"
	EventKindPriceChange EventKind = "price_change"
	EventKindCollection  EventKind = "collection"
	EventKindForeclosure EventKind = "foreclosure"
)

// PatronageEvent represents a normalized event emitted by a steward or artwork contract.
// This is the standard format published to NATS
type PatronageEvent struct {
	Chain           Chain     `json:"chain"`                  // e.g., "eip155:1"
	Kind            EventKind `json:"kind"`                   // mint, transfer, buy, price_change, collection, foreclosure
	ContractAddress string    `json:"contract_address"`       // emitting contract address
	FromAddress     *string   `json:"from_address,omitempty"` // transfer/mint sender
	ToAddress       *string   `json:"to_address,omitempty"`   // transfer/mint recipient
	Account         *string   `json:"account,omitempty"`      // buyer for buy, previous owner for foreclosure
	Amount          *string   `json:"amount,omitempty"`       // price, new price or collected amount in wei
	TxHash          string    `json:"tx_hash"`                // transaction hash
	BlockNumber     uint64    `json:"block_number"`           // block number
	BlockHash       *string   `json:"block_hash,omitempty"`   // block hash (optional)
	Timestamp       time.Time `json:"timestamp"`              // block timestamp
	TxIndex         uint64    `json:"tx_index"`               // transaction index in the block
	LogIndex        uint64    `json:"log_index"`              // log index in the block (for ordering)
}

// Valid checks that the fields required by the event kind are present
func (e *PatronageEvent) Valid() bool {
	if !IsValidChain(e.Chain) {
		return false
	}
	if !common.IsHexAddress(e.ContractAddress) {
		return false
	}
	if e.TxHash == "" {
		return false
	}

	switch e.Kind {
	case EventKindMint:
		if e.FromAddress != nil && *e.FromAddress != "" && !IsZeroAddress(*e.FromAddress) {
			return false
		}
		return validAddress(e.ToAddress)
	case EventKindTransfer:
		return validAddress(e.FromAddress) && validAddress(e.ToAddress)
	case EventKindBuy:
		return validAddress(e.Account) && validAmount(e.Amount)
	case EventKindForeclosure:
		return validAddress(e.Account)
	case EventKindPriceChange, EventKindCollection:
		return validAmount(e.Amount)
	default:
		return false
	}
}

// AmountValue parses the decimal amount of the event
func (e *PatronageEvent) AmountValue() (*big.Int, error) {
	if e.Amount == nil {
		return nil, fmt.Errorf("%w: missing amount", ErrInvalidEvent)
	}
	v, ok := new(big.Int).SetString(*e.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidEvent, *e.Amount)
	}
	return v, nil
}

// Key uniquely identifies the event on its chain
func (e *PatronageEvent) Key() string {
	return fmt.Sprintf("%s:%s:%d", e.Chain, strings.ToLower(e.TxHash), e.LogIndex)
}

// Before reports whether e was emitted before other on chain
func (e *PatronageEvent) Before(other *PatronageEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	return e.LogIndex < other.LogIndex
}

// TransferEventKind classifies a transfer log by its sender
func TransferEventKind(from string) EventKind {
	if IsZeroAddress(from) {
		return EventKindMint
	}
	return EventKindTransfer
}

// IsZeroAddress reports whether the address is the zero address
func IsZeroAddress(address string) bool {
	return strings.EqualFold(address, ETHEREUM_ZERO_ADDRESS)
}

// NormalizeAddress lower-cases a hex address so it can be used as a ledger key
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func validAddress(address *string) bool {
	return address != nil && common.IsHexAddress(*address) && !IsZeroAddress(*address)
}

func validAmount(amount *string) bool {
	if amount == nil {
		return false
	}
	v, ok := new(big.Int).SetString(*amount, 10)
	return ok && v.Sign() >= 0
}
