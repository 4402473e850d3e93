package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/wheelbot/internal/domain"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndListRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	limit := decimal.NewFromFloat(1.5)

	require.NoError(t, j.Record(ctx, domain.OrderRecord{
		Broker:        "ibkr",
		Symbol:        "AAPL",
		OptionSymbol:  "AAPL_011525P00105000",
		Action:        domain.OrderActionSell,
		Type:          domain.OrderTypeLimit,
		Quantity:      1,
		LimitPrice:    &limit,
		BrokerOrderID: "987654",
		Reason:        "write_put",
		CreatedAt:     time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, j.Record(ctx, domain.OrderRecord{
		Broker:       "ibkr",
		Symbol:       "AAPL",
		OptionSymbol: "AAPL_011525P00105000",
		Action:       domain.OrderActionBuy,
		Type:         domain.OrderTypeMarket,
		Quantity:     1,
		Reason:       "roll_close",
		DryRun:       true,
		CreatedAt:    time.Date(2025, 1, 2, 16, 0, 0, 0, time.UTC),
	}))

	records, err := j.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	newest := records[0]
	assert.Equal(t, "roll_close", newest.Reason)
	assert.True(t, newest.DryRun)
	assert.Nil(t, newest.LimitPrice, "market order has no limit price")
	assert.NotEmpty(t, newest.ID, "missing id is generated")

	oldest := records[1]
	assert.Equal(t, "write_put", oldest.Reason)
	assert.Equal(t, "987654", oldest.BrokerOrderID)
	require.NotNil(t, oldest.LimitPrice)
	assert.True(t, oldest.LimitPrice.Equal(limit))
	assert.Equal(t, time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC), oldest.CreatedAt)
}

func TestListRecentHonoursLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, domain.OrderRecord{
			Broker:       "schwab",
			Symbol:       "MSFT",
			OptionSymbol: "MSFT_011525P00400000",
			Action:       domain.OrderActionSell,
			Type:         domain.OrderTypeMarket,
			Quantity:     1,
			Reason:       "roll_open",
			CreatedAt:    time.Date(2025, 1, 2, 15, i, 0, 0, time.UTC),
		}))
	}

	records, err := j.ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.True(t, records[0].CreatedAt.After(records[2].CreatedAt))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.Record(context.Background(), domain.OrderRecord{
		Broker: "ibkr", Symbol: "AAPL", Action: domain.OrderActionSell,
		Type: domain.OrderTypeMarket, Quantity: 1,
	}))
	require.NoError(t, j1.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	records, err := j2.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 1, "schema bootstrap must not clobber existing rows")
}
