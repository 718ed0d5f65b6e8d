package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/adapter"
	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/reducer"
)

// stewardABI holds the view functions read while reducing events
const stewardABI = `[
	{"constant":true,"inputs":[],"name":"deposit","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"timeLastCollected","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"foreclosureTime","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"","type":"address"}],"name":"timeHeld","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}
]`

// EXECUTION_REVERTED_CODE is the JSON-RPC error code nodes use for reverted calls
const EXECUTION_REVERTED_CODE = 3

// ReaderConfig bounds the retries of a single contract read
type ReaderConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultReaderConfig retries a read for up to two minutes
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
		MaxElapsedTime:  2 * time.Minute,
	}
}

type stewardReader struct {
	client adapter.EthClient
	abi    abi.ABI
	config ReaderConfig
}

// NewStewardReader returns a reducer.StateReader issuing eth_call against the steward contract
// at the block of the event being reduced
func NewStewardReader(client adapter.EthClient, config ReaderConfig) (reducer.StateReader, error) {
	parsed, err := abi.JSON(strings.NewReader(stewardABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &stewardReader{client: client, abi: parsed, config: config}, nil
}

// Deposit returns deposit() of the steward contract
func (r *stewardReader) Deposit(ctx context.Context, contract string, blockNumber uint64) (*big.Int, error) {
	return r.callUint(ctx, contract, blockNumber, "deposit")
}

// TimeLastCollected returns timeLastCollected() of the steward contract
func (r *stewardReader) TimeLastCollected(ctx context.Context, contract string, blockNumber uint64) (*big.Int, error) {
	return r.callUint(ctx, contract, blockNumber, "timeLastCollected")
}

// ForeclosureTime returns foreclosureTime() of the steward contract.
// Early contracts do not implement it or revert while in foreclosure; both report false.
func (r *stewardReader) ForeclosureTime(ctx context.Context, contract string, blockNumber uint64) (*big.Int, bool, error) {
	v, err := r.callUint(ctx, contract, blockNumber, "foreclosureTime")
	if errors.Is(err, domain.ErrCallReverted) {
		logger.DebugCtx(ctx, "foreclosureTime unavailable",
			zap.String("contract", contract),
			zap.Uint64("block_number", blockNumber),
			zap.Error(err))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// TimeHeld returns timeHeld(patron) of the steward contract
func (r *stewardReader) TimeHeld(ctx context.Context, contract string, patron string, blockNumber uint64) (*big.Int, error) {
	if !common.IsHexAddress(patron) {
		return nil, fmt.Errorf("invalid patron address %q", patron)
	}
	return r.callUint(ctx, contract, blockNumber, "timeHeld", common.HexToAddress(patron))
}

func (r *stewardReader) callUint(ctx context.Context, contract string, blockNumber uint64, method string, args ...interface{}) (*big.Int, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}

	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack data: %w", err)
	}

	contractAddr := common.HexToAddress(contract)
	msg := ethereum.CallMsg{To: &contractAddr, Data: data}
	block := new(big.Int).SetUint64(blockNumber)

	var result []byte
	operation := func() error {
		out, err := r.client.CallContract(ctx, msg, block)
		if err != nil {
			if isRevertError(err) {
				return backoff.Permanent(fmt.Errorf("%w: %s: %v", domain.ErrCallReverted, method, err))
			}
			return err
		}
		// no code or a fallback function answers with empty data
		if len(out) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: %s returned no data", domain.ErrCallReverted, method))
		}
		result = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.InitialInterval
	b.MaxInterval = r.config.MaxInterval
	b.MaxElapsedTime = r.config.MaxElapsedTime

	notify := func(err error, next time.Duration) {
		logger.WarnCtx(ctx, "Contract read failed, retrying",
			zap.String("method", method),
			zap.String("contract", contract),
			zap.Uint64("block_number", blockNumber),
			zap.Duration("next_retry_in", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}

	var value *big.Int
	if err := r.abi.UnpackIntoInterface(&value, method, result); err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return value, nil
}

// isRevertError reports whether the node executed the call and the contract reverted.
// Other node errors (missing trie node, header not found, rate limits) also carry
// rpc.DataError but are transient and must be retried.
func isRevertError(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == EXECUTION_REVERTED_CODE {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "execution reverted") ||
		strings.Contains(errStr, "invalid opcode") ||
		strings.Contains(errStr, "vm execution error")
}
