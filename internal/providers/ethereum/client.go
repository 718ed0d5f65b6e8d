package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/adapter"
	"github.com/feral-file/ff-patronage-indexer/internal/block"
	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
)

const (
	// DEFAULT_LOG_STEP_SIZE is the block span of one eth_getLogs request before it is halved
	DEFAULT_LOG_STEP_SIZE uint64 = 1_000_000
	// DEFAULT_LOG_QUERY_TIMEOUT bounds a single eth_getLogs request
	DEFAULT_LOG_QUERY_TIMEOUT = time.Minute
)

//go:generate mockgen -source=client.go -destination=../../mocks/ethereum_client.go -package=mocks -mock_names=EthereumClient=MockEthereumClient
type EthereumClient interface {
	// ParseEventLog parses a steward or artwork log into a patronage event.
	// It returns nil for logs the ledger does not consume.
	ParseEventLog(ctx context.Context, vLog types.Log) (*domain.PatronageEvent, error)

	// SubscribeFilterLogs subscribes to filter logs
	SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)

	// FilterPatronageLogs returns the patronage logs emitted by the contracts in [fromBlock, toBlock],
	// ordered by block number and log index
	FilterPatronageLogs(ctx context.Context, contracts []common.Address, fromBlock, toBlock uint64) ([]types.Log, error)

	// HeaderByNumber returns a header by number, nil for the latest
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// Close closes the connection
	Close()
}

type ethereumClient struct {
	chainID  domain.Chain
	client   adapter.EthClient
	blocks   block.BlockProvider
	stepSize uint64
}

func NewClient(chainID domain.Chain, client adapter.EthClient, blocks block.BlockProvider) EthereumClient {
	return &ethereumClient{
		chainID:  chainID,
		client:   client,
		blocks:   blocks,
		stepSize: DEFAULT_LOG_STEP_SIZE,
	}
}

// SubscribeFilterLogs subscribes to filter logs
func (c *ethereumClient) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.client.SubscribeFilterLogs(ctx, query, ch)
}

// HeaderByNumber returns a header by number
func (c *ethereumClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.client.HeaderByNumber(ctx, number)
}

// FilterPatronageLogs walks [fromBlock, toBlock] in windows of stepSize blocks.
// Providers cap the number of results per request (10k on Infura), so a window
// that is rejected for returning too many results is retried at half the size.
func (c *ethereumClient) FilterPatronageLogs(ctx context.Context, contracts []common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid block range %d-%d", fromBlock, toBlock)
	}

	query := ethereum.FilterQuery{
		Addresses: contracts,
		Topics:    patronageTopics(),
	}

	var allLogs []types.Log
	step := c.stepSize
	current := fromBlock

	for current <= toBlock {
		end := current + step - 1
		if end > toBlock || end < current {
			end = toBlock
		}

		rangeQuery := query
		rangeQuery.FromBlock = new(big.Int).SetUint64(current)
		rangeQuery.ToBlock = new(big.Int).SetUint64(end)

		logs, err := c.filterLogs(ctx, rangeQuery)
		if err == nil {
			allLogs = append(allLogs, logs...)
			if end == toBlock {
				break
			}
			current = end + 1
			continue
		}

		if !isTooManyResultsError(err) {
			return nil, fmt.Errorf("failed to get logs for range %d-%d: %w", current, end, err)
		}
		if step == 1 {
			return nil, fmt.Errorf("too many results in block %d: %w", current, err)
		}

		step = step / 2
		logger.WarnCtx(ctx, "Too many results, reducing step size",
			zap.Uint64("oldStepSize", step*2),
			zap.Uint64("newStepSize", step),
			zap.Uint64("fromBlock", current),
			zap.Uint64("toBlock", end))
	}

	sort.SliceStable(allLogs, func(i, j int) bool {
		if allLogs[i].BlockNumber != allLogs[j].BlockNumber {
			return allLogs[i].BlockNumber < allLogs[j].BlockNumber
		}
		return allLogs[i].Index < allLogs[j].Index
	})

	return allLogs, nil
}

func (c *ethereumClient) filterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, DEFAULT_LOG_QUERY_TIMEOUT)
	defer cancel()
	return c.client.FilterLogs(timeoutCtx, query)
}

// isTooManyResultsError checks if the error is related to too many results
func isTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "query returned more than 10000 results") ||
		strings.Contains(errStr, "query timeout exceeded") ||
		strings.Contains(errStr, "too many results") ||
		strings.Contains(errStr, "exceeded maximum")
}

// ParseEventLog parses a steward or artwork log into a patronage event
func (c *ethereumClient) ParseEventLog(ctx context.Context, vLog types.Log) (*domain.PatronageEvent, error) {
	if len(vLog.Topics) == 0 {
		return nil, fmt.Errorf("%w: log without topics", domain.ErrInvalidEvent)
	}

	if vLog.Removed {
		logger.WarnCtx(ctx, "Skipping removed log",
			zap.String("contract", vLog.Address.Hex()),
			zap.String("txHash", vLog.TxHash.Hex()))
		return nil, nil
	}

	event := &domain.PatronageEvent{
		Chain:           c.chainID,
		ContractAddress: vLog.Address.Hex(),
		TxHash:          vLog.TxHash.Hex(),
		BlockNumber:     vLog.BlockNumber,
		TxIndex:         uint64(vLog.TxIndex),
		LogIndex:        uint64(vLog.Index),
	}

	switch vLog.Topics[0] {
	case logBuyEventSignature:
		owner, err := addressArg(vLog, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid LogBuy event: %w", err)
		}
		price, err := uintArg(vLog, 1)
		if err != nil {
			return nil, fmt.Errorf("invalid LogBuy event: %w", err)
		}
		event.Kind = domain.EventKindBuy
		event.Account = &owner
		event.Amount = &price

	case logPriceChangeEventSignature:
		price, err := uintArg(vLog, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid LogPriceChange event: %w", err)
		}
		event.Kind = domain.EventKindPriceChange
		event.Amount = &price

	case logCollectionEventSignature:
		collected, err := uintArg(vLog, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid LogCollection event: %w", err)
		}
		event.Kind = domain.EventKindCollection
		event.Amount = &collected

	case logForeclosureEventSignature:
		prevOwner, err := addressArg(vLog, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid LogForeclosure event: %w", err)
		}
		event.Kind = domain.EventKindForeclosure
		event.Account = &prevOwner

	case transferEventSignature:
		// ERC20 Transfer has 3 topics, ERC721 has 4
		if len(vLog.Topics) == 3 {
			logger.DebugCtx(ctx, "Skipping ERC20 transfer event",
				zap.String("contract", vLog.Address.Hex()),
				zap.String("txHash", vLog.TxHash.Hex()))
			return nil, nil
		}
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid Transfer event: expected 3 or 4 topics, got %d", len(vLog.Topics))
		}

		from := common.BytesToAddress(vLog.Topics[1].Bytes()).Hex()
		to := common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()
		event.Kind = domain.TransferEventKind(from)
		event.FromAddress = &from
		event.ToAddress = &to

	default:
		return nil, fmt.Errorf("unknown event signature: %s", vLog.Topics[0].Hex())
	}

	timestamp, err := c.blocks.GetBlockTimestamp(ctx, vLog.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get block timestamp: %w", err)
	}
	event.Timestamp = timestamp

	blockHash := vLog.BlockHash.Hex()
	event.BlockHash = &blockHash

	return event, nil
}

// word returns the i-th event argument, from the topics when indexed and from the data otherwise.
// Non-indexed arguments are packed into the data in declaration order after the indexed ones.
func word(vLog types.Log, i int) ([]byte, error) {
	indexed := len(vLog.Topics) - 1
	if i < indexed {
		return vLog.Topics[i+1].Bytes(), nil
	}

	offset := (i - indexed) * 32
	if len(vLog.Data) < offset+32 {
		return nil, fmt.Errorf("missing argument %d: %d topics, %d data bytes", i, len(vLog.Topics), len(vLog.Data))
	}
	return vLog.Data[offset : offset+32], nil
}

func uintArg(vLog types.Log, i int) (string, error) {
	b, err := word(vLog, i)
	if err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(b).String(), nil
}

func addressArg(vLog types.Log, i int) (string, error) {
	b, err := word(vLog, i)
	if err != nil {
		return "", err
	}
	return common.BytesToAddress(b).Hex(), nil
}

// Close closes the connection
func (c *ethereumClient) Close() {
	c.client.Close()
}
