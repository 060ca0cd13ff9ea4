package position

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"
	storesqlite "github.com/ccruz0/crypto-2.0-sub003/internal/store/sqlite"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var orderSeq int

func newTestStore(t *testing.T) *storesqlite.SqliteStore {
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

func insertOrder(t *testing.T, st *storesqlite.SqliteStore, symbol, side, status, role string, qty float64, createdAt time.Time) {
	t.Helper()
	orderSeq++
	err := st.Orders().Insert(context.Background(), &model.OrderModel{
		OrderID:       fmt.Sprintf("ord-%d", orderSeq),
		Symbol:        symbol,
		Side:          side,
		Status:        status,
		Role:          role,
		Quantity:      qty,
		FilledQty:     qty,
		CreatedAtUnix: createdAt.Unix(),
	})
	require.NoError(t, err)
}

func TestFIFOLotMatching(t *testing.T) {
	st := newTestStore(t)
	rec := NewReconciler(st)
	t0 := time.Now().Add(-time.Hour)

	// Filled BUYs of [10, 5] oldest first, filled SELLs totaling 12:
	// lot 1 fully consumed, lot 2 partially consumed but still one open lot.
	insertOrder(t, st, "BTC_USDT", model.SideBuy, model.StatusFilled, model.RoleNone, 10, t0)
	insertOrder(t, st, "BTC_USDT", model.SideBuy, model.StatusFilled, model.RoleNone, 5, t0.Add(time.Minute))
	insertOrder(t, st, "BTC_USDT", model.SideSell, model.StatusFilled, model.RoleNone, 7, t0.Add(2*time.Minute))
	insertOrder(t, st, "BTC_USDT", model.SideSell, model.StatusFilled, model.RoleTakeProfit, 5, t0.Add(3*time.Minute))

	view, err := rec.Snapshot(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	require.Equal(t, 1, view.OpenLots)
	require.Equal(t, 0, view.PendingBuys)
	require.InDelta(t, 3.0, view.NetQty, 1e-9)
}

func TestPendingBuysCount(t *testing.T) {
	st := newTestStore(t)
	rec := NewReconciler(st)
	t0 := time.Now()

	insertOrder(t, st, "ETH_USDT", model.SideBuy, model.StatusNew, model.RoleNone, 1, t0)
	insertOrder(t, st, "ETH_USDT", model.SideBuy, model.StatusPartiallyFilled, model.RoleNone, 2, t0)
	// Protective legs never count as pending exposure.
	insertOrder(t, st, "ETH_USDT", model.SideBuy, model.StatusNew, model.RoleStopLoss, 1, t0)
	insertOrder(t, st, "ETH_USDT", model.SideBuy, model.StatusCanceled, model.RoleNone, 1, t0)

	open, err := rec.OpenPositions(context.Background(), "ETH_USDT")
	require.NoError(t, err)
	require.Equal(t, 2, open)
}

func TestSellsCoverAllBuys(t *testing.T) {
	st := newTestStore(t)
	rec := NewReconciler(st)
	t0 := time.Now().Add(-time.Hour)

	insertOrder(t, st, "SOL_USDT", model.SideBuy, model.StatusFilled, model.RoleNone, 4, t0)
	insertOrder(t, st, "SOL_USDT", model.SideSell, model.StatusFilled, model.RoleStopLoss, 9, t0.Add(time.Minute))

	view, err := rec.Snapshot(context.Background(), "SOL_USDT")
	require.NoError(t, err)
	require.Equal(t, 0, view.OpenLots)
	require.Equal(t, 0.0, view.NetQty)
}

func TestBareBaseAggregatesQuotes(t *testing.T) {
	st := newTestStore(t)
	rec := NewReconciler(st)
	t0 := time.Now().Add(-time.Hour)

	insertOrder(t, st, "BTC_USDT", model.SideBuy, model.StatusFilled, model.RoleNone, 1, t0)
	insertOrder(t, st, "BTC_USDC", model.SideBuy, model.StatusFilled, model.RoleNone, 1, t0.Add(time.Minute))
	insertOrder(t, st, "BTC_USDC", model.SideSell, model.StatusFilled, model.RoleNone, 1, t0.Add(2*time.Minute))

	// Full pair sees only its own quote.
	open, err := rec.OpenPositions(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	require.Equal(t, 1, open)

	// FIFO across the base: the oldest lot (USDT) absorbs the sell, the
	// USDC lot stays open.
	open, err = rec.OpenPositions(context.Background(), "BTC")
	require.NoError(t, err)
	require.Equal(t, 1, open)
}

func TestTotalOpenPositionsPerBase(t *testing.T) {
	st := newTestStore(t)
	rec := NewReconciler(st)
	t0 := time.Now().Add(-time.Hour)

	insertOrder(t, st, "BTC_USDT", model.SideBuy, model.StatusFilled, model.RoleNone, 1, t0)
	insertOrder(t, st, "BTC_USDC", model.SideBuy, model.StatusFilled, model.RoleNone, 1, t0)
	insertOrder(t, st, "ETH_USDT", model.SideBuy, model.StatusNew, model.RoleNone, 1, t0)

	total, err := rec.TotalOpenPositions(context.Background())
	require.NoError(t, err)
	// BTC counts its two lots once under one base, ETH adds a pending BUY.
	require.Equal(t, 3, total)
}
