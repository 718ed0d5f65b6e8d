package reducer_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/epoch"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/mocks"
	"github.com/feral-file/ff-patronage-indexer/internal/reducer"
	"github.com/feral-file/ff-patronage-indexer/internal/store"
)

const (
	patronP = "0x1111111111111111111111111111111111111111"
	patronQ = "0x2222222222222222222222222222222222222222"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// testReducerMocks contains the reducer under test and its collaborators
type testReducerMocks struct {
	ctrl    *gomock.Controller
	reader  *mocks.MockStateReader
	store   store.Store
	reducer *reducer.Reducer
}

func setupTestReducer(t *testing.T, cfg epoch.Config) *testReducerMocks {
	ctrl := gomock.NewController(t)
	registry, err := epoch.NewRegistry(cfg)
	require.NoError(t, err)

	tm := &testReducerMocks{
		ctrl:   ctrl,
		reader: mocks.NewMockStateReader(ctrl),
		store:  store.NewMemoryStore(),
	}
	tm.reducer = reducer.New(registry, tm.store, tm.reader)
	return tm
}

func tearDownTestReducer(mocks *testReducerMocks) {
	mocks.ctrl.Finish()
}

// blockTime is the block timestamp used by every test event
func blockTime(block uint64) time.Time {
	return time.Unix(1_600_000_000+int64(block)*13, 0).UTC()
}

func newEvent(kind domain.EventKind, contract string, block, logIndex uint64) *domain.PatronageEvent {
	return &domain.PatronageEvent{
		Chain:           domain.ChainEthereumMainnet,
		Kind:            kind,
		ContractAddress: contract,
		TxHash:          fmt.Sprintf("0x%064x", block),
		BlockNumber:     block,
		Timestamp:       blockTime(block),
		LogIndex:        logIndex,
	}
}

func mintEvent(artwork, to string, block uint64) *domain.PatronageEvent {
	e := newEvent(domain.EventKindMint, artwork, block, 0)
	from := domain.ETHEREUM_ZERO_ADDRESS
	e.FromAddress = &from
	e.ToAddress = &to
	return e
}

func transferEvent(artwork, from, to string, block, logIndex uint64) *domain.PatronageEvent {
	e := newEvent(domain.EventKindTransfer, artwork, block, logIndex)
	e.FromAddress = &from
	e.ToAddress = &to
	return e
}

func buyEvent(steward, owner string, price int64, block, logIndex uint64) *domain.PatronageEvent {
	e := newEvent(domain.EventKindBuy, steward, block, logIndex)
	amount := fmt.Sprint(price)
	e.Account = &owner
	e.Amount = &amount
	return e
}

func priceChangeEvent(steward string, price int64, block, logIndex uint64) *domain.PatronageEvent {
	e := newEvent(domain.EventKindPriceChange, steward, block, logIndex)
	amount := fmt.Sprint(price)
	e.Amount = &amount
	return e
}

func collectionEvent(steward string, collected int64, block, logIndex uint64) *domain.PatronageEvent {
	e := newEvent(domain.EventKindCollection, steward, block, logIndex)
	amount := fmt.Sprint(collected)
	e.Amount = &amount
	return e
}

func foreclosureEvent(steward, prevOwner string, block, logIndex uint64) *domain.PatronageEvent {
	e := newEvent(domain.EventKindForeclosure, steward, block, logIndex)
	e.Account = &prevOwner
	return e
}

func mustApply(t *testing.T, r *reducer.Reducer, e *domain.PatronageEvent, expected reducer.Outcome) {
	t.Helper()
	outcome, err := r.Apply(context.Background(), e)
	require.NoError(t, err)
	require.Equal(t, expected, outcome)
}

func getSteward(t *testing.T, st store.Store, id string) *domain.Steward {
	t.Helper()
	s, err := st.GetSteward(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s, "steward %s", id)
	return s
}

func getPatronSteward(t *testing.T, st store.Store, patron, steward string) *domain.PatronSteward {
	t.Helper()
	ps, err := st.GetPatronSteward(context.Background(), patron+steward)
	require.NoError(t, err)
	require.NotNil(t, ps, "patron steward %s/%s", patron, steward)
	return ps
}

func TestApply_Mint(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	mustApply(t, mocks.reducer, mintEvent(epoch.MainnetV2Artwork, epoch.MainnetV2Steward, 100), reducer.OutcomeApplied)

	s := getSteward(t, mocks.store, epoch.MainnetV2Steward)
	assert.Equal(t, epoch.MainnetV2Steward, s.CurrentPatron)
	assert.Equal(t, epoch.MainnetV2Steward, s.PreviousPatron)
	assert.Equal(t, blockTime(100).Unix(), s.TimeLastCollected)
	assert.Equal(t, 0, s.CurrentPrice.Sign())
	assert.Equal(t, 0, s.TotalCollected.Sign())

	ps := getPatronSteward(t, mocks.store, epoch.MainnetV2Steward, epoch.MainnetV2Steward)
	assert.Equal(t, 0, ps.TimeHeld.Sign())
	assert.Equal(t, 0, ps.Collected.Sign())

	p, err := mocks.store.GetPatron(context.Background(), epoch.MainnetV2Steward)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestApply_MintDoesNotRewindBaseline(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	mustApply(t, mocks.reducer, mintEvent(epoch.MainnetV2Artwork, epoch.MainnetV2Steward, 100), reducer.OutcomeApplied)
	second := mintEvent(epoch.MainnetV2Artwork, epoch.MainnetV2Steward, 200)
	mustApply(t, mocks.reducer, second, reducer.OutcomeApplied)

	s := getSteward(t, mocks.store, epoch.MainnetV2Steward)
	assert.Equal(t, blockTime(100).Unix(), s.TimeLastCollected)
}

func TestApply_MintOfRestoredArtworkIsIgnored(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	mustApply(t, mocks.reducer, mintEvent(epoch.MainnetRestoredV1Artwork, epoch.MainnetRestoredV1Steward, 100), reducer.OutcomeSkipped)

	s, err := mocks.store.GetSteward(context.Background(), epoch.MainnetRestoredV1Steward)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestApply_Buy(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	mustApply(t, mocks.reducer, mintEvent(epoch.MainnetV2Artwork, epoch.MainnetV2Steward, 100), reducer.OutcomeApplied)

	mocks.reader.EXPECT().
		Deposit(gomock.Any(), epoch.MainnetV2Steward, uint64(200)).
		Return(big.NewInt(5000), nil)
	mocks.reader.EXPECT().
		ForeclosureTime(gomock.Any(), epoch.MainnetV2Steward, uint64(200)).
		Return(big.NewInt(1_700_000_000), true, nil)

	// checksum casing is canonicalized
	mustApply(t, mocks.reducer, buyEvent(epoch.MainnetV2Steward, "0xAbCdEf0000000000000000000000000000000001", 100, 200, 1), reducer.OutcomeApplied)

	owner := "0xabcdef0000000000000000000000000000000001"
	s := getSteward(t, mocks.store, epoch.MainnetV2Steward)
	assert.Equal(t, int64(100), s.CurrentPrice.Int64())
	assert.Equal(t, owner, s.CurrentPatron)
	assert.Equal(t, blockTime(200).Unix(), s.TimeAcquired)
	assert.Equal(t, blockTime(200).Unix(), s.TimeLastCollected)
	assert.Equal(t, int64(5000), s.CurrentDeposit.Int64())
	assert.Equal(t, int64(1_700_000_000), s.ForeclosureTime)

	ps := getPatronSteward(t, mocks.store, owner, epoch.MainnetV2Steward)
	assert.Equal(t, 0, ps.TimeHeld.Sign())

	p, err := mocks.store.GetPatron(context.Background(), owner)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestApply_BuyOnOldDeploymentIsIgnored(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	mustApply(t, mocks.reducer, buyEvent(epoch.MainnetOldV1Steward, patronP, 100, 200, 0), reducer.OutcomeSkipped)
}

func TestApply_ForeclosureTimeUnsupported(t *testing.T) {
	t.Run("reverted call yields the sentinel", func(t *testing.T) {
		mocks := setupTestReducer(t, epoch.MainnetConfig())
		defer tearDownTestReducer(mocks)

		mocks.reader.EXPECT().Deposit(gomock.Any(), epoch.MainnetRestoredV1Steward, uint64(300)).Return(big.NewInt(1), nil)
		mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), epoch.MainnetRestoredV1Steward, uint64(300)).Return(nil, false, nil)

		mustApply(t, mocks.reducer, buyEvent(epoch.MainnetRestoredV1Steward, patronP, 10, 300, 0), reducer.OutcomeApplied)

		s := getSteward(t, mocks.store, epoch.MainnetRestoredV1Steward)
		assert.Equal(t, domain.FAR_FUTURE_FORECLOSURE_TIME, s.ForeclosureTime)
	})

	t.Run("deployment without foreclosureTime never calls it", func(t *testing.T) {
		mocks := setupTestReducer(t, epoch.MainnetConfig())
		defer tearDownTestReducer(mocks)

		mustApply(t, mocks.reducer, mintEvent(epoch.MainnetOldV1Artwork, epoch.MainnetOldV1Steward, 100), reducer.OutcomeApplied)

		mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), epoch.MainnetOldV1Steward, uint64(150)).Return(big.NewInt(blockTime(150).Unix()), nil)
		mocks.reader.EXPECT().Deposit(gomock.Any(), epoch.MainnetOldV1Steward, uint64(150)).Return(big.NewInt(1), nil)

		mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetOldV1Steward, 3, 150, 0), reducer.OutcomeApplied)

		s := getSteward(t, mocks.store, epoch.MainnetRestoredV1Steward)
		assert.Equal(t, domain.FAR_FUTURE_FORECLOSURE_TIME, s.ForeclosureTime)
	})
}

func TestApply_PriceChange(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	mustApply(t, mocks.reducer, priceChangeEvent(epoch.MainnetV2Steward, 777, 100, 0), reducer.OutcomeApplied)

	s := getSteward(t, mocks.store, epoch.MainnetV2Steward)
	assert.Equal(t, int64(777), s.CurrentPrice.Int64())
}

func TestApply_CollectionRouting(t *testing.T) {
	ctx := context.Background()

	t.Run("patron-held steward credits the current patron", func(t *testing.T) {
		mocks := setupTestReducer(t, epoch.MainnetConfig())
		defer tearDownTestReducer(mocks)

		s := domain.NewSteward(epoch.MainnetV2Steward)
		s.CurrentPrice = big.NewInt(100)
		s.CurrentPatron = patronP
		s.PreviousPatron = patronQ
		s.TimeLastCollected = 1000
		require.NoError(t, mocks.store.SaveSteward(ctx, s))

		mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), epoch.MainnetV2Steward, uint64(500)).Return(big.NewInt(1600), nil)
		mocks.reader.EXPECT().Deposit(gomock.Any(), epoch.MainnetV2Steward, uint64(500)).Return(big.NewInt(90), nil)
		mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), epoch.MainnetV2Steward, uint64(500)).Return(big.NewInt(9999), true, nil)

		mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetV2Steward, 5, 500, 0), reducer.OutcomeApplied)

		ps := getPatronSteward(t, mocks.store, patronP, epoch.MainnetV2Steward)
		assert.Equal(t, int64(600), ps.TimeHeld.Int64())
		assert.Equal(t, int64(5), ps.Collected.Int64())

		got := getSteward(t, mocks.store, epoch.MainnetV2Steward)
		assert.Equal(t, int64(1600), got.TimeLastCollected)
		assert.Equal(t, int64(90), got.CurrentDeposit.Int64())
		assert.Equal(t, int64(9999), got.ForeclosureTime)
		assert.Equal(t, int64(5), got.TotalCollected.Int64())

		missing, err := mocks.store.GetPatronSteward(ctx, patronQ+epoch.MainnetV2Steward)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("self-held steward credits the previous patron", func(t *testing.T) {
		mocks := setupTestReducer(t, epoch.MainnetConfig())
		defer tearDownTestReducer(mocks)

		s := domain.NewSteward(epoch.MainnetV2Steward)
		s.CurrentPatron = patronP
		s.PreviousPatron = patronQ
		s.TimeLastCollected = 1000
		require.NoError(t, mocks.store.SaveSteward(ctx, s))

		mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), epoch.MainnetV2Steward, uint64(500)).Return(big.NewInt(1200), nil)
		mocks.reader.EXPECT().Deposit(gomock.Any(), epoch.MainnetV2Steward, uint64(500)).Return(big.NewInt(0), nil)
		mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), epoch.MainnetV2Steward, uint64(500)).Return(big.NewInt(1200), true, nil)

		mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetV2Steward, 5, 500, 0), reducer.OutcomeApplied)

		ps := getPatronSteward(t, mocks.store, patronQ, epoch.MainnetV2Steward)
		assert.Equal(t, int64(200), ps.TimeHeld.Int64())
		assert.Equal(t, int64(5), ps.Collected.Int64())

		missing, err := mocks.store.GetPatronSteward(ctx, patronP+epoch.MainnetV2Steward)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("timeLastCollected moving backwards does not reduce timeHeld", func(t *testing.T) {
		mocks := setupTestReducer(t, epoch.MainnetConfig())
		defer tearDownTestReducer(mocks)

		s := domain.NewSteward(epoch.MainnetV2Steward)
		s.CurrentPrice = big.NewInt(100)
		s.CurrentPatron = patronP
		s.TimeLastCollected = 2000
		require.NoError(t, mocks.store.SaveSteward(ctx, s))

		mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1500), nil)
		mocks.reader.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), nil)
		mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), true, nil)

		mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetV2Steward, 1, 500, 0), reducer.OutcomeApplied)

		ps := getPatronSteward(t, mocks.store, patronP, epoch.MainnetV2Steward)
		assert.Equal(t, 0, ps.TimeHeld.Sign())
		assert.Equal(t, int64(2000), getSteward(t, mocks.store, epoch.MainnetV2Steward).TimeLastCollected)

		// the next collection is credited from the kept baseline, not from the stale read
		mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(2100), nil)
		mocks.reader.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), nil)
		mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), true, nil)

		mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetV2Steward, 1, 510, 0), reducer.OutcomeApplied)

		ps = getPatronSteward(t, mocks.store, patronP, epoch.MainnetV2Steward)
		assert.Equal(t, int64(100), ps.TimeHeld.Int64())
		assert.Equal(t, int64(2100), getSteward(t, mocks.store, epoch.MainnetV2Steward).TimeLastCollected)
	})
}

func TestApply_OldDeploymentCollectionCutoff(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	// no reads are expected for a suppressed collection
	mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetOldV1Steward, 5, epoch.MainnetRestorationBlock+1, 0), reducer.OutcomeSkipped)

	s, err := mocks.store.GetSteward(context.Background(), epoch.MainnetRestoredV1Steward)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestApply_AliasedStewardHasOneRecord(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)
	ctx := context.Background()

	cutoff := epoch.MainnetRestorationBlock

	mocks.reader.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(10), nil).AnyTimes()
	mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), true, nil).AnyTimes()
	mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, block uint64) (*big.Int, error) {
			return big.NewInt(blockTime(block).Unix()), nil
		}).AnyTimes()

	mustApply(t, mocks.reducer, mintEvent(epoch.MainnetOldV1Artwork, epoch.MainnetOldV1Steward, cutoff-100), reducer.OutcomeApplied)
	mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetOldV1Steward, 2, cutoff-50, 0), reducer.OutcomeApplied)
	mustApply(t, mocks.reducer, transferEvent(epoch.MainnetOldV1Artwork, patronP, epoch.MainnetOldV1Steward, cutoff-40, 0), reducer.OutcomeApplied)
	mustApply(t, mocks.reducer, buyEvent(epoch.MainnetRestoredV1Steward, patronP, 50, cutoff+10, 0), reducer.OutcomeApplied)
	mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetRestoredV1Steward, 3, cutoff+20, 0), reducer.OutcomeApplied)
	mustApply(t, mocks.reducer, collectionEvent(epoch.MainnetOldV1Steward, 4, cutoff+30, 0), reducer.OutcomeSkipped)

	old, err := mocks.store.GetSteward(ctx, epoch.MainnetOldV1Steward)
	require.NoError(t, err)
	assert.Nil(t, old)

	s := getSteward(t, mocks.store, epoch.MainnetRestoredV1Steward)
	assert.Equal(t, int64(5), s.TotalCollected.Int64())
	assert.Equal(t, patronP, s.PreviousPatron, "transfer to the old steward is recorded on the restored steward")

	relationships, err := mocks.store.GetPatronStewardsBySteward(ctx, epoch.MainnetRestoredV1Steward, 0, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(relationships))
	for _, ps := range relationships {
		ids = append(ids, ps.ID)
		assert.NotContains(t, ps.ID, epoch.MainnetOldV1Steward)
	}
	assert.ElementsMatch(t, []string{
		epoch.MainnetRestoredV1Steward + epoch.MainnetRestoredV1Steward,
		patronP + epoch.MainnetRestoredV1Steward,
	}, ids)
}

func TestApply_Foreclosure(t *testing.T) {
	ctx := context.Background()

	t.Run("sets price to zero and leaves deposit alone", func(t *testing.T) {
		mocks := setupTestReducer(t, epoch.MainnetConfig())
		defer tearDownTestReducer(mocks)

		s := domain.NewSteward(epoch.MainnetV2Steward)
		s.CurrentPrice = big.NewInt(100)
		s.CurrentDeposit = big.NewInt(7)
		s.CurrentPatron = patronP
		require.NoError(t, mocks.store.SaveSteward(ctx, s))

		mustApply(t, mocks.reducer, foreclosureEvent(epoch.MainnetV2Steward, patronP, 500, 2), reducer.OutcomeApplied)

		got := getSteward(t, mocks.store, epoch.MainnetV2Steward)
		assert.True(t, got.InForeclosure())
		assert.Equal(t, int64(7), got.CurrentDeposit.Int64())
		assert.Equal(t, patronP, got.CurrentPatron)
	})

	t.Run("migration foreclosure is ignored", func(t *testing.T) {
		mocks := setupTestReducer(t, epoch.MainnetConfig())
		defer tearDownTestReducer(mocks)

		s := domain.NewSteward(epoch.MainnetRestoredV1Steward)
		s.CurrentPrice = big.NewInt(100)
		require.NoError(t, mocks.store.SaveSteward(ctx, s))

		mustApply(t, mocks.reducer, foreclosureEvent(epoch.MainnetRestoredV1Steward, patronP, epoch.MainnetRestoredMintForeclosureBlock, 0), reducer.OutcomeSkipped)
		got := getSteward(t, mocks.store, epoch.MainnetRestoredV1Steward)
		assert.Equal(t, int64(100), got.CurrentPrice.Int64())

		mustApply(t, mocks.reducer, foreclosureEvent(epoch.MainnetRestoredV1Steward, patronP, epoch.MainnetRestoredMintForeclosureBlock+1, 0), reducer.OutcomeApplied)
		got = getSteward(t, mocks.store, epoch.MainnetRestoredV1Steward)
		assert.True(t, got.InForeclosure())
	})
}

func TestApply_TransferToSteward(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name            string
		artwork         string
		steward         string
		expectedCurrent string
	}{
		{
			name:            "restored deployment only records the previous patron",
			artwork:         epoch.MainnetRestoredV1Artwork,
			steward:         epoch.MainnetRestoredV1Steward,
			expectedCurrent: patronP,
		},
		{
			name:            "v2 deployment also resets the current patron",
			artwork:         epoch.MainnetV2Artwork,
			steward:         epoch.MainnetV2Steward,
			expectedCurrent: epoch.MainnetV2Steward,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := setupTestReducer(t, epoch.MainnetConfig())
			defer tearDownTestReducer(mocks)

			s := domain.NewSteward(tt.steward)
			s.CurrentPatron = patronP
			require.NoError(t, mocks.store.SaveSteward(ctx, s))

			mustApply(t, mocks.reducer, transferEvent(tt.artwork, patronP, tt.steward, 500, 1), reducer.OutcomeApplied)

			got := getSteward(t, mocks.store, tt.steward)
			assert.Equal(t, patronP, got.PreviousPatron)
			assert.Equal(t, tt.expectedCurrent, got.CurrentPatron)
		})
	}

	t.Run("transfer between patrons is left to the buy", func(t *testing.T) {
		mocks := setupTestReducer(t, epoch.MainnetConfig())
		defer tearDownTestReducer(mocks)

		mustApply(t, mocks.reducer, transferEvent(epoch.MainnetV2Artwork, patronP, patronQ, 500, 1), reducer.OutcomeSkipped)
	})
}

func TestApply_Duplicate(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	s := domain.NewSteward(epoch.MainnetV2Steward)
	s.CurrentPrice = big.NewInt(100)
	s.CurrentPatron = patronP
	require.NoError(t, mocks.store.SaveSteward(context.Background(), s))

	mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(10), nil).Times(1)
	mocks.reader.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), nil).Times(1)
	mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), true, nil).Times(1)

	e := collectionEvent(epoch.MainnetV2Steward, 5, 500, 0)
	mustApply(t, mocks.reducer, e, reducer.OutcomeApplied)
	mustApply(t, mocks.reducer, e, reducer.OutcomeDuplicate)

	got := getSteward(t, mocks.store, epoch.MainnetV2Steward)
	assert.Equal(t, int64(5), got.TotalCollected.Int64())
}

func TestApply_ReadFailureCommitsNothing(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)
	ctx := context.Background()

	s := domain.NewSteward(epoch.MainnetV2Steward)
	s.CurrentPrice = big.NewInt(100)
	s.CurrentPatron = patronP
	s.TimeLastCollected = 1000
	require.NoError(t, mocks.store.SaveSteward(ctx, s))

	rpcErr := errors.New("connection refused")
	e := collectionEvent(epoch.MainnetV2Steward, 5, 500, 0)

	gomock.InOrder(
		mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1500), nil),
		mocks.reader.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, rpcErr),
	)

	outcome, err := mocks.reducer.Apply(ctx, e)
	require.Error(t, err)
	assert.Empty(t, outcome)
	var readErr *reducer.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "deposit", readErr.Call)
	assert.ErrorIs(t, err, rpcErr)

	got := getSteward(t, mocks.store, epoch.MainnetV2Steward)
	assert.Equal(t, int64(1000), got.TimeLastCollected)
	assert.Equal(t, 0, got.TotalCollected.Sign())
	ps, err := mocks.store.GetPatronSteward(ctx, patronP+epoch.MainnetV2Steward)
	require.NoError(t, err)
	assert.Nil(t, ps)

	// redelivery after the backend recovers applies the event once
	mocks.reader.EXPECT().TimeLastCollected(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1500), nil)
	mocks.reader.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), nil)
	mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, false, nil)
	mustApply(t, mocks.reducer, e, reducer.OutcomeApplied)

	ps = getPatronSteward(t, mocks.store, patronP, epoch.MainnetV2Steward)
	assert.Equal(t, int64(500), ps.TimeHeld.Int64())
}

func TestApply_ForeclosureTimeTransportErrorIsFatal(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)

	mocks.reader.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Return(big.NewInt(1), nil)
	mocks.reader.EXPECT().ForeclosureTime(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, false, errors.New("timeout"))

	_, err := mocks.reducer.Apply(context.Background(), buyEvent(epoch.MainnetV2Steward, patronP, 1, 500, 0))
	var readErr *reducer.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "foreclosureTime", readErr.Call)
}

func TestApply_RejectsBadInput(t *testing.T) {
	mocks := setupTestReducer(t, epoch.MainnetConfig())
	defer tearDownTestReducer(mocks)
	ctx := context.Background()

	_, err := mocks.reducer.Apply(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	missingAmount := newEvent(domain.EventKindCollection, epoch.MainnetV2Steward, 1, 0)
	_, err = mocks.reducer.Apply(ctx, missingAmount)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	_, err = mocks.reducer.Apply(ctx, priceChangeEvent("0x3333333333333333333333333333333333333333", 1, 1, 0))
	assert.ErrorIs(t, err, domain.ErrUnknownContract)
}

func TestApply_OnChainTimeHeld(t *testing.T) {
	const (
		steward = "0x4444444444444444444444444444444444444444"
		artwork = "0x5555555555555555555555555555555555555555"
	)
	cfg := epoch.Config{Deployments: []epoch.Deployment{{
		Name:           "onchain",
		Generation:     epoch.GenerationOnChainTimeHeld,
		StewardAddress: steward,
		ArtworkAddress: artwork,
	}}}

	mocks := setupTestReducer(t, cfg)
	defer tearDownTestReducer(mocks)

	mocks.reader.EXPECT().Deposit(gomock.Any(), steward, gomock.Any()).Return(big.NewInt(10), nil).AnyTimes()

	mustApply(t, mocks.reducer, mintEvent(artwork, steward, 100), reducer.OutcomeApplied)
	mustApply(t, mocks.reducer, buyEvent(steward, patronP, 100, 200, 0), reducer.OutcomeApplied)

	mocks.reader.EXPECT().TimeHeld(gomock.Any(), steward, patronP, uint64(300)).Return(big.NewInt(1234), nil)
	mustApply(t, mocks.reducer, collectionEvent(steward, 8, 300, 0), reducer.OutcomeApplied)

	ps := getPatronSteward(t, mocks.store, patronP, steward)
	assert.Equal(t, int64(1234), ps.TimeHeld.Int64())
	assert.Equal(t, int64(8), ps.Collected.Int64())
	s := getSteward(t, mocks.store, steward)
	assert.Equal(t, blockTime(300).Unix(), s.TimeLastCollected)
	assert.Equal(t, domain.FAR_FUTURE_FORECLOSURE_TIME, s.ForeclosureTime)

	mocks.reader.EXPECT().TimeHeld(gomock.Any(), steward, patronP, uint64(400)).Return(big.NewInt(2000), nil)
	mustApply(t, mocks.reducer, foreclosureEvent(steward, patronP, 400, 3), reducer.OutcomeApplied)

	ps = getPatronSteward(t, mocks.store, patronP, steward)
	assert.Equal(t, int64(2000), ps.TimeHeld.Int64())
	s = getSteward(t, mocks.store, steward)
	assert.True(t, s.InForeclosure())
	assert.Equal(t, steward, s.CurrentPatron)
	assert.Equal(t, patronP, s.PreviousPatron)
}

func TestApply_OnChainCollectionAfterForeclosure(t *testing.T) {
	const (
		steward = "0x4444444444444444444444444444444444444444"
		artwork = "0x5555555555555555555555555555555555555555"
	)
	cfg := epoch.Config{Deployments: []epoch.Deployment{{
		Name:           "onchain",
		Generation:     epoch.GenerationOnChainTimeHeld,
		StewardAddress: steward,
		ArtworkAddress: artwork,
	}}}

	mocks := setupTestReducer(t, cfg)
	defer tearDownTestReducer(mocks)

	mocks.reader.EXPECT().Deposit(gomock.Any(), steward, gomock.Any()).Return(big.NewInt(10), nil).AnyTimes()

	mustApply(t, mocks.reducer, mintEvent(artwork, steward, 100), reducer.OutcomeApplied)
	mustApply(t, mocks.reducer, buyEvent(steward, patronP, 100, 200, 0), reducer.OutcomeApplied)

	mocks.reader.EXPECT().TimeHeld(gomock.Any(), steward, patronP, uint64(300)).Return(big.NewInt(1500), nil)
	mustApply(t, mocks.reducer, foreclosureEvent(steward, patronP, 300, 0), reducer.OutcomeApplied)

	// the foreclosure handed the artwork back to the steward, which now accrues timeHeld
	mocks.reader.EXPECT().TimeHeld(gomock.Any(), steward, steward, uint64(400)).Return(big.NewInt(777), nil)
	mustApply(t, mocks.reducer, collectionEvent(steward, 5, 400, 0), reducer.OutcomeApplied)

	self := getPatronSteward(t, mocks.store, steward, steward)
	assert.Equal(t, int64(777), self.TimeHeld.Int64())
	assert.Equal(t, int64(5), self.Collected.Int64())

	ps := getPatronSteward(t, mocks.store, patronP, steward)
	assert.Equal(t, int64(1500), ps.TimeHeld.Int64())
	assert.Equal(t, 0, ps.Collected.Sign())

	s := getSteward(t, mocks.store, steward)
	assert.Equal(t, int64(5), s.TotalCollected.Int64())
	assert.Equal(t, blockTime(400).Unix(), s.TimeLastCollected)
}

// transactionTrackingStore flags the span of every ledger transaction
type transactionTrackingStore struct {
	store.Store
	inTransaction atomic.Bool
}

func (s *transactionTrackingStore) WithTransaction(ctx context.Context, fn func(ledger store.Ledger) error) error {
	s.inTransaction.Store(true)
	defer s.inTransaction.Store(false)
	return s.Store.WithTransaction(ctx, fn)
}

func TestApply_ReadsBeforeTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	registry, err := epoch.NewRegistry(epoch.MainnetConfig())
	require.NoError(t, err)
	st := &transactionTrackingStore{Store: store.NewMemoryStore()}
	reader := mocks.NewMockStateReader(ctrl)
	r := reducer.New(registry, st, reader)

	s := domain.NewSteward(epoch.MainnetV2Steward)
	s.CurrentPrice = big.NewInt(100)
	s.CurrentPatron = patronP
	s.TimeLastCollected = blockTime(400).Unix()
	require.NoError(t, st.SaveSteward(ctx, s))

	outsideTransaction := func() {
		assert.False(t, st.inTransaction.Load(), "contract read inside the ledger transaction")
	}
	reader.EXPECT().TimeLastCollected(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(context.Context, string, uint64) { outsideTransaction() }).
		Return(big.NewInt(blockTime(500).Unix()), nil).Times(1)
	reader.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(context.Context, string, uint64) { outsideTransaction() }).
		Return(big.NewInt(1), nil).Times(2)
	reader.EXPECT().ForeclosureTime(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(context.Context, string, uint64) { outsideTransaction() }).
		Return(big.NewInt(1), true, nil).Times(2)

	mustApply(t, r, collectionEvent(epoch.MainnetV2Steward, 5, 500, 0), reducer.OutcomeApplied)
	mustApply(t, r, buyEvent(epoch.MainnetV2Steward, patronQ, 300, 510, 2), reducer.OutcomeApplied)

	ps := getPatronSteward(t, st, patronP, epoch.MainnetV2Steward)
	assert.Equal(t, blockTime(500).Unix()-blockTime(400).Unix(), ps.TimeHeld.Int64())
	got := getSteward(t, st, epoch.MainnetV2Steward)
	assert.Equal(t, patronQ, got.CurrentPatron)
}

func TestUnitOfWork_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	registry, err := epoch.NewRegistry(epoch.MainnetConfig())
	require.NoError(t, err)
	st := store.NewMemoryStore()

	err = st.WithTransaction(ctx, func(ledger store.Ledger) error {
		uow := reducer.NewUnitOfWork(ledger, registry.Canonicalizer())

		s, lookup, err := uow.Steward(ctx, epoch.MainnetOldV1Steward)
		require.NoError(t, err)
		assert.Equal(t, reducer.Created, lookup)
		assert.Equal(t, epoch.MainnetRestoredV1Steward, s.ID)

		again, lookup, err := uow.Steward(ctx, epoch.MainnetRestoredV1Steward)
		require.NoError(t, err)
		assert.Equal(t, reducer.Existing, lookup)
		assert.Same(t, s, again)

		_, lookup, err = uow.PatronSteward(ctx, patronP, epoch.MainnetOldV1Steward)
		require.NoError(t, err)
		assert.Equal(t, reducer.Created, lookup)

		_, lookup, err = uow.Patron(ctx, patronP)
		require.NoError(t, err)
		assert.Equal(t, reducer.Existing, lookup, "the relationship ensured the patron")

		return uow.Commit(ctx)
	})
	require.NoError(t, err)

	err = st.WithTransaction(ctx, func(ledger store.Ledger) error {
		uow := reducer.NewUnitOfWork(ledger, registry.Canonicalizer())
		_, lookup, err := uow.PatronSteward(ctx, patronP, epoch.MainnetRestoredV1Steward)
		require.NoError(t, err)
		assert.Equal(t, reducer.Existing, lookup)
		return nil
	})
	require.NoError(t, err)
}
