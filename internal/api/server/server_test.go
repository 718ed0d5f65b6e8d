package server_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-patronage-indexer/internal/api/server"
	"github.com/feral-file/ff-patronage-indexer/internal/api/shared/dto"
	"github.com/feral-file/ff-patronage-indexer/internal/canonical"
	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/store"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const (
	oldSteward      = "0x74e6ab057f8a9fd9355398a17579cd4c90ab2b66"
	restoredSteward = "0xb602c0bbfab973422b91c8dfc8302b7b47550fc0"
	patronA         = "0x1111111111111111111111111111111111111111"
	patronB         = "0x2222222222222222222222222222222222222222"
)

func seededRouter(t *testing.T) http.Handler {
	ctx := context.Background()
	st := store.NewMemoryStore()

	steward := domain.NewSteward(restoredSteward)
	steward.CurrentPatron = patronA
	steward.CurrentPrice = big.NewInt(5000)
	steward.CurrentDeposit = big.NewInt(100)
	steward.TotalCollected = big.NewInt(42)
	steward.TimeAcquired = 1600000000
	require.NoError(t, st.SaveSteward(ctx, steward))

	c, err := canonical.New(map[string]string{oldSteward: restoredSteward})
	require.NoError(t, err)

	for _, patron := range []string{patronB, patronA} {
		require.NoError(t, st.SavePatron(ctx, &domain.Patron{ID: patron}))
		ps := domain.NewPatronSteward(c.PatronStewardID(patron, restoredSteward), patron, restoredSteward)
		ps.TimeHeld = big.NewInt(3600)
		require.NoError(t, st.SavePatronSteward(ctx, ps))
	}

	amount := "5000"
	for i, block := range []uint64{11900000, 11800000} {
		account := patronA
		recorded, err := st.RecordEvent(ctx, restoredSteward, &domain.PatronageEvent{
			Chain:           domain.ChainEthereumMainnet,
			Kind:            domain.EventKindBuy,
			ContractAddress: restoredSteward,
			Account:         &account,
			Amount:          &amount,
			TxHash:          "0x" + string(rune('a'+i)),
			BlockNumber:     block,
			Timestamp:       time.Unix(1600000000, 0).UTC(),
		})
		require.NoError(t, err)
		require.True(t, recorded)
	}

	return server.New(server.Config{}, st, c).Router()
}

func get(t *testing.T, router http.Handler, path string, out interface{}) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	router := seededRouter(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, router, "/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetSteward(t *testing.T) {
	router := seededRouter(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "canonical id", path: "/api/v1/stewards/" + restoredSteward, status: http.StatusOK},
		{name: "aliased id resolves to the canonical record", path: "/api/v1/stewards/" + oldSteward, status: http.StatusOK},
		{name: "checksum casing", path: "/api/v1/stewards/0xB602C0BBFAB973422B91C8DFC8302B7B47550FC0", status: http.StatusOK},
		{name: "unknown steward", path: "/api/v1/stewards/0x595f2c4e9e3e35b0946394a714c2cd6875c04988", status: http.StatusNotFound},
		{name: "malformed id", path: "/api/v1/stewards/not-an-address", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var steward dto.StewardResponse
			require.Equal(t, tt.status, get(t, router, tt.path, &steward))
			if tt.status != http.StatusOK {
				return
			}
			assert.Equal(t, restoredSteward, steward.ID)
			assert.Equal(t, patronA, steward.CurrentPatron)
			assert.Equal(t, "5000", steward.CurrentPrice)
			assert.Equal(t, "42", steward.TotalCollected)
			assert.False(t, steward.InForeclosure)
		})
	}
}

func TestListStewardPatrons(t *testing.T) {
	router := seededRouter(t)

	var page dto.PatronStewardListResponse
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/stewards/"+oldSteward+"/patrons", &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, 20, page.Limit)
	// ordered by id
	assert.Equal(t, patronA, page.Items[0].Patron)
	assert.Equal(t, "3600", page.Items[0].TimeHeld)

	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/stewards/"+restoredSteward+"/patrons?limit=1&offset=1", &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, patronB, page.Items[0].Patron)
	assert.Equal(t, 1, page.Offset)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/stewards/"+restoredSteward+"/patrons?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/stewards/"+restoredSteward+"/patrons?offset=-1", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/stewards/"+restoredSteward+"/patrons?limit=abc", nil))
}

func TestListStewardEvents(t *testing.T) {
	router := seededRouter(t)

	var page dto.LedgerEventListResponse
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/stewards/"+restoredSteward+"/events?limit=500", &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, 100, page.Limit)
	// chain order
	assert.Equal(t, uint64(11800000), page.Items[0].BlockNumber)
	assert.Equal(t, uint64(11900000), page.Items[1].BlockNumber)
	assert.Equal(t, domain.EventKindBuy, page.Items[0].Kind)
}

func TestListPatronStewards(t *testing.T) {
	router := seededRouter(t)

	var page dto.PatronStewardListResponse
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/patrons/"+patronB+"/stewards", &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, restoredSteward, page.Items[0].Steward)

	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/patrons/0x3333333333333333333333333333333333333333/stewards", &page))
	assert.Empty(t, page.Items)
}

// failingStore fails every steward lookup
type failingStore struct {
	store.Store
}

func (failingStore) GetSteward(context.Context, string) (*domain.Steward, error) {
	return nil, assert.AnError
}

func TestGetSteward_StoreError(t *testing.T) {
	c, err := canonical.New(nil)
	require.NoError(t, err)
	router := server.New(server.Config{}, failingStore{}, c).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stewards/"+restoredSteward, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "database_error")
}
