package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthClient is the subset of ethclient.Client the indexer uses
//
//go:generate mockgen -source=ethclient.go -destination=../mocks/ethclient.go -package=mocks -mock_names=EthClient=MockEthClient,EthClientDialer=MockEthClientDialer
type EthClient interface {
	// ChainID returns the EIP-155 chain id of the node
	ChainID(ctx context.Context) (*big.Int, error)

	// SubscribeFilterLogs subscribes to filter logs
	SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)

	// FilterLogs retrieves logs that match the filter query
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// HeaderByNumber returns a header by number, nil for the latest
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// CallContract executes a read-only call at the given block, nil for the latest
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	// Close closes the connection
	Close()
}

// EthClientDialer dials Ethereum nodes
type EthClientDialer interface {
	Dial(ctx context.Context, rawurl string) (EthClient, error)
}

type ethClientDialer struct{}

// NewEthClientDialer creates a dialer backed by the go-ethereum client
func NewEthClientDialer() EthClientDialer {
	return &ethClientDialer{}
}

func (d *ethClientDialer) Dial(ctx context.Context, rawurl string) (EthClient, error) {
	return ethclient.DialContext(ctx, rawurl)
}

// DialChain dials rawurl and checks the node serves the expected EIP-155 chain id
func DialChain(ctx context.Context, dialer EthClientDialer, rawurl string, expectedChainID int64) (EthClient, error) {
	client, err := dialer.Dial(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum node: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if chainID.Cmp(big.NewInt(expectedChainID)) != 0 {
		client.Close()
		return nil, fmt.Errorf("node serves chain %s, expected %d", chainID, expectedChainID)
	}

	return client, nil
}
