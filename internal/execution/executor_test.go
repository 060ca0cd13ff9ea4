package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/exchange"
	"github.com/ccruz0/crypto-2.0-sub003/internal/leverage"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
	storesqlite "github.com/ccruz0/crypto-2.0-sub003/internal/store/sqlite"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeAPI scripts per-call responses for the two order methods.
type fakeAPI struct {
	createCalls []map[string]any
	createErrs  []error
	createAcks  []exchange.OrderAck

	listCalls int
	listErr   error
	listAcks  []exchange.OrderAck
}

func (f *fakeAPI) CreateOrder(_ context.Context, params map[string]any) (exchange.OrderAck, error) {
	i := len(f.createCalls)
	f.createCalls = append(f.createCalls, params)
	if i < len(f.createErrs) && f.createErrs[i] != nil {
		return exchange.OrderAck{}, f.createErrs[i]
	}
	if i < len(f.createAcks) {
		return f.createAcks[i], nil
	}
	return exchange.OrderAck{OrderID: "ok"}, nil
}

func (f *fakeAPI) CreateOrderList(_ context.Context, _ []map[string]any) ([]exchange.OrderAck, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listAcks, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	st, err := storesqlite.NewSqliteStoreFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testSpec() OrderSpec {
	return OrderSpec{
		Symbol:        "BTC_USDT",
		Side:          "BUY",
		Price:         50000,
		Quantity:      0.001,
		PriceDecimals: 2,
		QtyDecimals:   6,
		ClientOrderID: "test-oid",
	}
}

func formatErr() error {
	return &exchange.APIError{Code: exchange.CodeBadRequest, Message: "invalid price format"}
}

func permissionErr() error {
	return &exchange.APIError{Code: exchange.CodeCreateOrderDisabled, Message: "create order disabled"}
}

func TestPlaceFirstVariantSucceeds(t *testing.T) {
	api := &fakeAPI{createAcks: []exchange.OrderAck{{OrderID: "o-1"}}}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 0, 0, false, false, "engine")
	require.True(t, res.OK())
	require.Equal(t, "o-1", res.OrderID)
	require.Equal(t, "string-exact", res.Variant)
	require.Empty(t, res.TriedVariants)
	require.Len(t, api.createCalls, 1)

	// A successful placement lands in the ledger.
	row, err := st.Orders().FindByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "engine", row.Source)
	require.Equal(t, "string-exact", row.Variant)
}

func TestPlaceNormalizesConcatenatedSymbol(t *testing.T) {
	api := &fakeAPI{createAcks: []exchange.OrderAck{{OrderID: "n-1"}}}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	spec := testSpec()
	spec.Symbol = "BTCUSDT"
	res := ex.Place(context.Background(), spec, 0, 0, false, false, "engine")
	require.True(t, res.OK())
	require.Equal(t, "BTC_USDT", api.createCalls[0]["instrument_name"])

	row, err := st.Orders().FindByOrderID(context.Background(), "n-1")
	require.NoError(t, err)
	require.Equal(t, "BTC_USDT", row.Symbol)

	// The per-base risk queries see the order.
	count, err := st.Orders().CountForBaseSince(context.Background(), "BTC", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	last, err := st.Orders().LastOrderTimeForBase(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestPlaceAdvancesPastFormatRejections(t *testing.T) {
	api := &fakeAPI{
		createErrs: []error{formatErr(), formatErr(), nil},
		createAcks: []exchange.OrderAck{{}, {}, {OrderID: "o-3"}},
	}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 0, 0, false, false, "engine")
	require.True(t, res.OK())
	require.Equal(t, "numeric", res.Variant)
	require.Equal(t, []string{"string-exact", "string-fixed-precision"}, res.TriedVariants)
	require.Len(t, api.createCalls, 3)
}

func TestPlaceNeverRepeatsAVariant(t *testing.T) {
	api := &fakeAPI{createErrs: []error{formatErr(), formatErr(), formatErr(), formatErr()}}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 0, 0, false, false, "engine")
	require.False(t, res.OK())
	require.Len(t, api.createCalls, len(Variants))
	seen := map[string]bool{}
	for _, label := range res.TriedVariants {
		require.False(t, seen[label], "variant %s tried twice", label)
		seen[label] = true
	}
}

func TestPlaceTransientErrorAdvancesVariant(t *testing.T) {
	api := &fakeAPI{
		createErrs: []error{errors.New("context deadline exceeded"), nil},
		createAcks: []exchange.OrderAck{{}, {OrderID: "o-2"}},
	}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 0, 0, false, false, "engine")
	require.True(t, res.OK())
	require.Equal(t, "string-fixed-precision", res.Variant)
	require.Equal(t, []string{"string-exact"}, res.TriedVariants)
}

func TestPlacePermissionRejectionTriggersFallbackOnce(t *testing.T) {
	api := &fakeAPI{
		createErrs: []error{permissionErr()},
		listAcks:   []exchange.OrderAck{{OrderID: "batch-1"}},
	}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 0, 0, false, false, "engine")
	require.True(t, res.OK())
	require.Equal(t, "batch-1", res.OrderID)
	require.Equal(t, "batch-fallback", res.Variant)
	require.True(t, res.FallbackAttempted)
	// The primary method is not tried again after the permission rejection.
	require.Len(t, api.createCalls, 1)
	require.Equal(t, 1, api.listCalls)
}

func TestPlaceUnknownCodeIsTerminal(t *testing.T) {
	api := &fakeAPI{
		createErrs: []error{&exchange.APIError{Code: 20001, Message: "insufficient balance"}},
	}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 0, 0, false, false, "engine")
	require.False(t, res.OK())
	require.Equal(t, 20001, res.ErrorCode)
	require.Equal(t, CategoryExchange, res.Category)
	require.Len(t, api.createCalls, 1)
	require.Equal(t, 0, api.listCalls)
}

func TestPlaceExhaustionNeverSwallows(t *testing.T) {
	api := &fakeAPI{
		createErrs: []error{formatErr(), formatErr(), formatErr(), permissionErr()},
		listErr:    &exchange.APIError{Code: 306, Message: "still disabled"},
	}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 0, 0, false, false, "engine")
	require.False(t, res.OK())
	require.Empty(t, res.OrderID)
	require.NotEmpty(t, res.Error)
	require.NotEmpty(t, res.TriedVariants)
	require.Contains(t, res.TriedVariants, "batch-fallback")
	require.NotNil(t, res.LastError)
	require.Equal(t, 306, res.LastError.Code)
	require.True(t, res.FallbackAttempted)
	require.Equal(t, 1, api.listCalls)

	// Nothing lands in the ledger on failure.
	rows, err := st.Orders().ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestPlaceMarginStepsDownLadderThenSpot(t *testing.T) {
	// Every margin attempt is rejected outright; the spot retry succeeds.
	// Ladder from 2x: 2 fails, next is nil, spot attempt follows.
	reject := &exchange.APIError{Code: 20002, Message: "margin not allowed"}
	api := &fakeAPI{
		createErrs: []error{reject, nil},
		createAcks: []exchange.OrderAck{{}, {OrderID: "spot-1"}},
	}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 10, 10, true, false, "engine")
	require.True(t, res.OK())
	require.Equal(t, "spot-1", res.OrderID)
	// First call carried leverage, the spot retry did not.
	require.Contains(t, api.createCalls[0], "leverage")
	require.NotContains(t, api.createCalls[1], "leverage")
}

func TestPlaceMarginSuccessRecordsLeverage(t *testing.T) {
	api := &fakeAPI{createAcks: []exchange.OrderAck{{OrderID: "m-1"}}}
	st := newTestStore(t)
	cache := leverage.NewCache(st)
	ex := NewExecutor(api, st, cache)

	res := ex.Place(context.Background(), testSpec(), 10, 10, true, false, "engine")
	require.True(t, res.OK())
	require.Equal(t, 2.0, res.Leverage)
	require.Equal(t, "2", api.createCalls[0]["leverage"])

	rec, err := st.Leverages().Find(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 2.0, rec.MinVerified)
}

func TestPlaceDryRunWritesLedgerOnly(t *testing.T) {
	api := &fakeAPI{}
	st := newTestStore(t)
	ex := NewExecutor(api, st, leverage.NewCache(st))

	res := ex.Place(context.Background(), testSpec(), 0, 0, false, true, "engine")
	require.True(t, res.OK())
	require.True(t, res.DryRun)
	require.Len(t, api.createCalls, 0)
	require.Equal(t, 0, api.listCalls)

	rows, err := st.Orders().ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].DryRun)
}
