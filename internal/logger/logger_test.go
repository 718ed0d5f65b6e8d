package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
)

func TestInitialize_WithoutSentry(t *testing.T) {
	require.NoError(t, Initialize(Config{Debug: true}))
	assert.NotNil(t, Default())

	// must not panic without a sentry client
	ErrorCtx(context.Background(), errors.New("boom"))
	Error(nil)
	Flush(time.Millisecond)
}

func TestInitialize_WithSentryClient(t *testing.T) {
	client, err := sentry.NewClient(sentry.ClientOptions{})
	require.NoError(t, err)

	require.NoError(t, Initialize(Config{SentryClient: client, Tags: map[string]string{"service": "test"}}))
	InfoCtx(context.Background(), "hello")
	Flush(time.Millisecond)

	require.NoError(t, Initialize(Config{}))
}

func TestWithStewardScope(t *testing.T) {
	ctx := WithStewardScope(context.Background(), "0xb602c0bbfab973422b91c8dfc8302b7b47550fc0")
	hub := sentry.GetHubFromContext(ctx)
	require.NotNil(t, hub)
	assert.NotSame(t, sentry.CurrentHub(), hub)
}

func TestEventFields(t *testing.T) {
	assert.Nil(t, EventFields(nil))

	fields := EventFields(&domain.PatronageEvent{
		Chain:           domain.ChainEthereumMainnet,
		Kind:            domain.EventKindCollection,
		ContractAddress: "0x595f2c4e9e3e35b0946394a714c2cd6875c04988",
		TxHash:          "0xabc",
		BlockNumber:     12,
		LogIndex:        3,
	})
	require.Len(t, fields, 6)
	assert.Equal(t, "kind", fields[1].Key)
	assert.Equal(t, "collection", fields[1].String)
}
