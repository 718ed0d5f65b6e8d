package reducer

import (
	"context"
	"fmt"
	"math/big"
)

// StateReader reads steward contract state as of a block.
// contract is the raw address of the emitting contract; reads never use canonical ids.
//
//go:generate mockgen -source=reader.go -destination=../mocks/state_reader.go -package=mocks -mock_names=StateReader=MockStateReader
type StateReader interface {
	// Deposit returns deposit() of the steward contract
	Deposit(ctx context.Context, contract string, blockNumber uint64) (*big.Int, error)
	// TimeLastCollected returns timeLastCollected() of the steward contract
	TimeLastCollected(ctx context.Context, contract string, blockNumber uint64) (*big.Int, error)
	// ForeclosureTime returns foreclosureTime() of the steward contract.
	// The boolean is false when the call reverts or the contract does not implement it.
	ForeclosureTime(ctx context.Context, contract string, blockNumber uint64) (*big.Int, bool, error)
	// TimeHeld returns timeHeld(patron) of the steward contract
	TimeHeld(ctx context.Context, contract string, patron string, blockNumber uint64) (*big.Int, error)
}

// ReadError marks a failed auxiliary read. The event must be redelivered, never skipped.
type ReadError struct {
	Call        string
	Contract    string
	BlockNumber uint64
	Err         error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s of %s at block %d: %v", e.Call, e.Contract, e.BlockNumber, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
