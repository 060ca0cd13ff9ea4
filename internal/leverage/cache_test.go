package leverage

import (
	"context"
	"testing"
	"time"

	storesqlite "github.com/ccruz0/crypto-2.0-sub003/internal/store/sqlite"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	st, err := storesqlite.NewSqliteStoreFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewCache(st)
}

func TestInitialLeverageStartsConservative(t *testing.T) {
	cache := newTestCache(t)
	lev := cache.InitialLeverage(context.Background(), "BTC_USDT", 100, 50)
	require.Equal(t, 2.0, lev)
}

func TestInitialLeverageCappedByAPIAndConfig(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.RecordSuccess(ctx, "BTC_USDT", 5))
	// Next step up would be 10, but both caps bind.
	require.Equal(t, 8.0, cache.InitialLeverage(ctx, "BTC_USDT", 8, 20))
	require.Equal(t, 3.0, cache.InitialLeverage(ctx, "BTC_USDT", 100, 3))
}

func TestLadderStepDownOnFailure(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	next, err := cache.NextTryAfterFailure(ctx, "BTC_USDT", 10, 1.0)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 5.0, *next)

	next, err = cache.NextTryAfterFailure(ctx, "BTC_USDT", 5, 1.0)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 3.0, *next)

	// Below the floor: nil means fall back to a non-margin order.
	next, err = cache.NextTryAfterFailure(ctx, "BTC_USDT", 2, 1.0)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestMinimumOfSuccessesPolicy(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.RecordSuccess(ctx, "ETH_USDT", 2))
	// A later success at a higher leverage must not raise the cached minimum.
	require.NoError(t, cache.RecordSuccess(ctx, "ETH_USDT", 3))

	rec, err := cache.st.Leverages().Find(ctx, "ETH_USDT")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 2.0, rec.MinVerified)
}

func TestStaleEntryReusedWithoutStepUp(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.RecordSuccess(ctx, "SOL_USDT", 3))
	// Fresh entry: step up to 5.
	require.Equal(t, 5.0, cache.InitialLeverage(ctx, "SOL_USDT", 100, 50))

	// Older than the verification window: start at the verified value.
	cache.nowFn = func() time.Time { return time.Now().Add(VerifyInterval + time.Hour) }
	require.Equal(t, 3.0, cache.InitialLeverage(ctx, "SOL_USDT", 100, 50))
}

func TestStepUpAfterVerifiedSuccess(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.RecordSuccess(ctx, "ADA_USDT", 2))
	require.Equal(t, 3.0, cache.InitialLeverage(ctx, "ADA_USDT", 100, 50))
}
