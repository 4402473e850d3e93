package portfolio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// fakeBroker counts fetches and can be switched to fail.
type fakeBroker struct {
	positionCalls atomic.Int64
	accountCalls  atomic.Int64
	fail          atomic.Bool
}

func (f *fakeBroker) Name() string                      { return "fake" }
func (f *fakeBroker) Connect(context.Context) bool      { return true }
func (f *fakeBroker) Disconnect(context.Context)        {}
func (f *fakeBroker) GetOpenOrders(context.Context) ([]domain.Order, error) {
	return nil, nil
}
func (f *fakeBroker) PlaceOrder(context.Context, domain.Order) (string, error) {
	return "", nil
}
func (f *fakeBroker) CancelOrder(context.Context, string) (bool, error) {
	return false, nil
}
func (f *fakeBroker) GetOptionChain(context.Context, string, *time.Time) (domain.OptionChain, error) {
	return domain.OptionChain{}, nil
}
func (f *fakeBroker) GetMarketData(context.Context, []string) (map[string]*domain.Quote, error) {
	return nil, nil
}

func (f *fakeBroker) GetPositions(context.Context) ([]domain.Position, error) {
	if f.fail.Load() {
		return nil, errors.New("backend down")
	}
	f.positionCalls.Add(1)
	return []domain.Position{
		{Symbol: "AAPL", Quantity: 100, AverageCost: decimal.NewFromInt(145)},
	}, nil
}

func (f *fakeBroker) GetAccountInfo(context.Context) (domain.AccountSnapshot, error) {
	if f.fail.Load() {
		return domain.AccountSnapshot{}, errors.New("backend down")
	}
	f.accountCalls.Add(1)
	return domain.AccountSnapshot{NetLiquidation: domain.Money(100000)}, nil
}

func newTestCache(b *fakeBroker) (*Cache, *time.Time) {
	cache := NewCache(b, slog.New(slog.DiscardHandler))
	clock := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }
	return cache, &clock
}

func TestSnapshotFetchesOncePerWindow(t *testing.T) {
	fake := &fakeBroker{}
	cache, clock := newTestCache(fake)
	ctx := context.Background()

	first, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, first.Positions, 1)
	require.NotNil(t, first.Account.NetLiquidation)

	*clock = clock.Add(29 * time.Second)
	second, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second, "within the window the same snapshot is served")
	assert.EqualValues(t, 1, fake.positionCalls.Load())
	assert.EqualValues(t, 1, fake.accountCalls.Load())

	*clock = clock.Add(2 * time.Second)
	third, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third, "past the window the snapshot is refreshed")
	assert.EqualValues(t, 2, fake.positionCalls.Load())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	fake := &fakeBroker{}
	cache, _ := newTestCache(fake)
	ctx := context.Background()

	_, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	cache.Invalidate()

	_, err = cache.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, fake.positionCalls.Load())
}

func TestFailedRefreshPropagatesError(t *testing.T) {
	fake := &fakeBroker{}
	fake.fail.Store(true)
	cache, _ := newTestCache(fake)

	_, err := cache.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestConcurrentReadsCollapseIntoOneFetch(t *testing.T) {
	fake := &fakeBroker{}
	cache, _ := newTestCache(fake)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Snapshot(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fake.positionCalls.Load())
	assert.EqualValues(t, 1, fake.accountCalls.Load())
}
