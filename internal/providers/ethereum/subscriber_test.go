package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/mocks"
)

// fakeSubscription is a log subscription whose error channel the test controls
type fakeSubscription struct {
	errCh        chan error
	unsubscribed bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (s *fakeSubscription) Err() <-chan error { return s.errCh }
func (s *fakeSubscription) Unsubscribe()      { s.unsubscribed = true }

func TestNewSubscriber_RequiresContracts(t *testing.T) {
	_, err := NewSubscriber(Config{ChainID: domain.ChainEthereumMainnet}, nil)
	assert.Error(t, err)
}

func TestSubscribeEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockEthereumClient(ctrl)
	contracts := []common.Address{common.HexToAddress(v2Steward), common.HexToAddress(v2Artwork)}

	sub, err := NewSubscriber(Config{ChainID: domain.ChainEthereumMainnet, Contracts: contracts}, client)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := newFakeSubscription()
	first := types.Log{BlockNumber: 10, Index: 0}
	unparsable := types.Log{BlockNumber: 10, Index: 1}
	ignored := types.Log{BlockNumber: 10, Index: 2}
	last := types.Log{BlockNumber: 11, Index: 0}

	client.EXPECT().SubscribeFilterLogs(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
			assert.Equal(t, contracts, q.Addresses)
			assert.Equal(t, big.NewInt(10), q.FromBlock)
			go func() {
				for _, l := range []types.Log{first, unparsable, ignored, last} {
					ch <- l
				}
			}()
			return fake, nil
		})

	price := "1"
	client.EXPECT().ParseEventLog(gomock.Any(), first).Return(&domain.PatronageEvent{TxHash: "0x1", BlockNumber: 10, Amount: &price}, nil)
	client.EXPECT().ParseEventLog(gomock.Any(), unparsable).Return(nil, errors.New("unknown event signature"))
	client.EXPECT().ParseEventLog(gomock.Any(), ignored).Return(nil, nil)
	client.EXPECT().ParseEventLog(gomock.Any(), last).Return(&domain.PatronageEvent{TxHash: "0x2", BlockNumber: 11}, nil)

	var received []string
	err = sub.SubscribeEvents(ctx, 10, func(event *domain.PatronageEvent) error {
		received = append(received, event.TxHash)
		if len(received) == 2 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"0x1", "0x2"}, received)
	assert.True(t, fake.unsubscribed)
}

func TestSubscribeEvents_HandlerErrorStops(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockEthereumClient(ctrl)

	sub, err := NewSubscriber(Config{ChainID: domain.ChainEthereumMainnet, Contracts: []common.Address{common.HexToAddress(v2Steward)}}, client)
	require.NoError(t, err)

	fake := newFakeSubscription()
	vLog := types.Log{BlockNumber: 3}
	client.EXPECT().SubscribeFilterLogs(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
			go func() { ch <- vLog }()
			return fake, nil
		})
	client.EXPECT().ParseEventLog(gomock.Any(), vLog).Return(&domain.PatronageEvent{TxHash: "0x3", BlockNumber: 3}, nil)

	publishErr := errors.New("nats unavailable")
	err = sub.SubscribeEvents(context.Background(), 0, func(*domain.PatronageEvent) error {
		return publishErr
	})
	assert.ErrorIs(t, err, publishErr)
}

func TestSubscribeEvents_SubscriptionErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockEthereumClient(ctrl)

	sub, err := NewSubscriber(Config{ChainID: domain.ChainEthereumMainnet, Contracts: []common.Address{common.HexToAddress(v2Steward)}}, client)
	require.NoError(t, err)

	client.EXPECT().SubscribeFilterLogs(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("dial failed"))
	err = sub.SubscribeEvents(context.Background(), 0, nil)
	assert.ErrorIs(t, err, domain.ErrSubscriptionFailed)

	fake := newFakeSubscription()
	fake.errCh <- errors.New("websocket closed")
	client.EXPECT().SubscribeFilterLogs(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q ethereum.FilterQuery, _ chan<- types.Log) (ethereum.Subscription, error) {
			assert.Nil(t, q.FromBlock)
			return fake, nil
		})
	err = sub.SubscribeEvents(context.Background(), 0, nil)
	assert.ErrorIs(t, err, domain.ErrSubscriptionFailed)
	assert.ErrorContains(t, err, "websocket closed")
}

func TestGetLatestBlock(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockEthereumClient(ctrl)

	sub, err := NewSubscriber(Config{ChainID: domain.ChainEthereumMainnet, Contracts: []common.Address{common.HexToAddress(v2Steward)}}, client)
	require.NoError(t, err)

	client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&types.Header{Number: big.NewInt(21_000_000)}, nil)
	n, err := sub.GetLatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(21_000_000), n)

	client.EXPECT().Close()
	sub.Close()
}
