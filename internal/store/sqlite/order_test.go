package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	st, err := NewSqliteStoreFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertOrder(t *testing.T, st *SqliteStore, orderID, symbol, side, status string, createdAt int64) {
	t.Helper()
	require.NoError(t, st.Orders().Insert(context.Background(), &model.OrderModel{
		OrderID:       orderID,
		Symbol:        symbol,
		Side:          side,
		Status:        status,
		Price:         100,
		Quantity:      1,
		CreatedAtUnix: createdAt,
	}))
}

func TestListByBaseMatchesBareBaseAndQuotedPairs(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().Unix()
	insertOrder(t, st, "o-1", "BTC_USDT", model.SideBuy, model.StatusNew, now-30)
	insertOrder(t, st, "o-2", "BTC_USD", model.SideBuy, model.StatusNew, now-20)
	insertOrder(t, st, "o-3", "BTC", model.SideBuy, model.StatusNew, now-10)
	insertOrder(t, st, "o-4", "ETH_USDT", model.SideBuy, model.StatusNew, now)

	rows, err := st.Orders().ListByBase(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// Oldest first.
	require.Equal(t, "o-1", rows[0].OrderID)
	require.Equal(t, "o-3", rows[2].OrderID)
}

func TestListByBaseUnderscoreIsNotAWildcard(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().Unix()
	insertOrder(t, st, "o-1", "BTC_USDT", model.SideBuy, model.StatusNew, now)
	// BTCX would match "BTC_%" if the underscore were a wildcard.
	insertOrder(t, st, "o-2", "BTCXUSDT", model.SideBuy, model.StatusNew, now)

	rows, err := st.Orders().ListByBase(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "o-1", rows[0].OrderID)
}

func TestBuyBasesDistinctAcrossQuotes(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().Unix()
	insertOrder(t, st, "o-1", "BTC_USDT", model.SideBuy, model.StatusFilled, now)
	insertOrder(t, st, "o-2", "BTC_USD", model.SideBuy, model.StatusFilled, now)
	insertOrder(t, st, "o-3", "ETH_USDT", model.SideBuy, model.StatusNew, now)
	insertOrder(t, st, "o-4", "SOL_USDT", model.SideSell, model.StatusFilled, now)

	bases, err := st.Orders().BuyBases(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"BTC", "ETH"}, bases)
}

func TestCountForBaseSinceRespectsCutoff(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()
	insertOrder(t, st, "o-1", "BTC_USDT", model.SideBuy, model.StatusNew, now.Add(-2*time.Hour).Unix())
	insertOrder(t, st, "o-2", "BTC_USDT", model.SideBuy, model.StatusNew, now.Unix())

	count, err := st.Orders().CountForBaseSince(context.Background(), "BTC", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestLastOrderTimeForBase(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	got, err := st.Orders().LastOrderTimeForBase(ctx, "BTC")
	require.NoError(t, err)
	require.Nil(t, got)

	now := time.Now().Truncate(time.Second)
	insertOrder(t, st, "o-1", "BTC_USDT", model.SideBuy, model.StatusNew, now.Add(-time.Minute).Unix())
	insertOrder(t, st, "o-2", "BTC_USDT", model.SideBuy, model.StatusNew, now.Unix())

	got, err = st.Orders().LastOrderTimeForBase(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, now.Unix(), got.Unix())
}

func TestUpdateFromExchangeMutatesSyncFieldsOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	insertOrder(t, st, "o-1", "BTC_USDT", model.SideBuy, model.StatusNew, time.Now().Unix())

	require.NoError(t, st.Orders().UpdateFromExchange(ctx, "o-1", model.StatusPartiallyFilled, 0.4, 99.5, 1700000000000))

	row, err := st.Orders().FindByOrderID(ctx, "o-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusPartiallyFilled, row.Status)
	require.Equal(t, 0.4, row.FilledQty)
	require.Equal(t, 99.5, row.AvgPrice)
	require.Equal(t, int64(1700000000000), row.ExchangeTime)
	// Placement fields untouched.
	require.Equal(t, 100.0, row.Price)
	require.Equal(t, "BTC_USDT", row.Symbol)
}

func TestFindByOrderIDAbsentIsNilNil(t *testing.T) {
	st := newTestStore(t)
	row, err := st.Orders().FindByOrderID(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, row)
}
