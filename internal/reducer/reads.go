package reducer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/epoch"
)

// eventReads holds the contract reads of one event. Values are read once and memoized, so they
// can be taken before the ledger transaction opens; a value not taken yet is read on first use.
type eventReads struct {
	reader StateReader
	policy epoch.Policy
	event  *domain.PatronageEvent

	deposit           *big.Int
	timeLastCollected *big.Int
	foreclosureTime   *int64
	timeHeld          map[string]*big.Int
}

func newEventReads(reader StateReader, policy epoch.Policy, event *domain.PatronageEvent) *eventReads {
	return &eventReads{
		reader:   reader,
		policy:   policy,
		event:    event,
		timeHeld: make(map[string]*big.Int),
	}
}

func (e *eventReads) readError(call string, err error) *ReadError {
	return &ReadError{Call: call, Contract: e.event.ContractAddress, BlockNumber: e.event.BlockNumber, Err: err}
}

// Deposit returns deposit() at the event block
func (e *eventReads) Deposit(ctx context.Context) (*big.Int, error) {
	if e.deposit != nil {
		return new(big.Int).Set(e.deposit), nil
	}

	v, err := e.reader.Deposit(ctx, e.event.ContractAddress, e.event.BlockNumber)
	if err != nil {
		return nil, e.readError("deposit", err)
	}
	e.deposit = v
	return new(big.Int).Set(v), nil
}

// TimeLastCollected returns timeLastCollected() at the event block
func (e *eventReads) TimeLastCollected(ctx context.Context) (*big.Int, error) {
	if e.timeLastCollected != nil {
		return new(big.Int).Set(e.timeLastCollected), nil
	}

	v, err := e.reader.TimeLastCollected(ctx, e.event.ContractAddress, e.event.BlockNumber)
	if err != nil {
		return nil, e.readError("timeLastCollected", err)
	}
	if !v.IsInt64() {
		return nil, e.readError("timeLastCollected", fmt.Errorf("value %s out of range", v))
	}
	e.timeLastCollected = v
	return new(big.Int).Set(v), nil
}

// TimeHeld returns timeHeld(patron) at the event block
func (e *eventReads) TimeHeld(ctx context.Context, patron string) (*big.Int, error) {
	if v, ok := e.timeHeld[patron]; ok {
		return new(big.Int).Set(v), nil
	}

	v, err := e.reader.TimeHeld(ctx, e.event.ContractAddress, patron, e.event.BlockNumber)
	if err != nil {
		return nil, e.readError("timeHeld", err)
	}
	e.timeHeld[patron] = v
	return new(big.Int).Set(v), nil
}

// ForeclosureTime degrades to the policy sentinel when the deployment or the call does not support it
func (e *eventReads) ForeclosureTime(ctx context.Context) (int64, error) {
	if e.foreclosureTime != nil {
		return *e.foreclosureTime, nil
	}

	ft := e.policy.ForeclosureTimeSentinel()
	if e.policy.ExposesForeclosureTime() {
		v, ok, err := e.reader.ForeclosureTime(ctx, e.event.ContractAddress, e.event.BlockNumber)
		if err != nil {
			return 0, e.readError("foreclosureTime", err)
		}
		if ok && v != nil && v.IsInt64() {
			ft = v.Int64()
		}
	}
	e.foreclosureTime = &ft
	return ft, nil
}
