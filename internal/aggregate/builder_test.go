package aggregate

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shoplake/etl/internal/entity"
	"github.com/shoplake/etl/internal/warehouse"
	"github.com/shoplake/etl/pkg/db"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/table"
)

func newTestBuilder(t *testing.T) (*Builder, *warehouse.Store) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store := warehouse.New(db.FromConn(conn), 100)
	require.NoError(t, store.EnsureSchema(context.Background()))

	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
	b := New(store, logg)
	b.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return b, store
}

func seedStaging(t *testing.T, store *warehouse.Store, name string, cols []string, rows ...[]any) {
	t.Helper()
	tbl := table.New(cols...)
	for _, r := range rows {
		require.NoError(t, tbl.Append(r))
	}
	_, err := store.WriteTable(context.Background(), warehouse.TierStaging, name, tbl, false)
	require.NoError(t, err)
}

// seedScenario loads a small staging dataset with known revenue:
//
//	order 10 (completed, 2025-01-02): 2x19.99 + 1x50.00 at 10% = 84.98
//	order 11 (pending): excluded from every metric
//	order 12 (completed, 2025-02-01): 3x10.00 at 20% = 24.00
func seedScenario(t *testing.T, store *warehouse.Store) {
	t.Helper()
	seedStaging(t, store, "customers", entity.Customers.ColumnNames(),
		[]any{int64(1), "Jane Roe", "jane@example.com", "US", "2025-01-01", "Premium"},
		[]any{int64(2), "Bob Stone", "bob@example.com", "DE", "2025-01-01", "Basic"},
		[]any{int64(3), "Carol Dae", "carol@example.com", "FR", "2025-01-01", "Standard"},
	)
	seedStaging(t, store, "products", entity.Products.ColumnNames(),
		[]any{int64(1), "Widget", "Toys", 19.99, 10.00},
		[]any{int64(2), "Lamp", "Home", 50.00, 25.00},
		[]any{int64(3), "Snack", "Food", 10.00, 4.00},
	)
	seedStaging(t, store, "orders", entity.Orders.ColumnNames(),
		[]any{int64(10), int64(1), "2025-01-02", "completed", 84.98},
		[]any{int64(11), int64(1), "2025-01-05", "pending", 10.00},
		[]any{int64(12), int64(2), "2025-02-01", "completed", 24.00},
	)
	seedStaging(t, store, "order_items", entity.OrderItems.ColumnNames(),
		[]any{int64(100), int64(10), int64(1), int64(2), 19.99, int64(0)},
		[]any{int64(101), int64(10), int64(2), int64(1), 50.00, int64(10)},
		[]any{int64(102), int64(11), int64(3), int64(1), 10.00, int64(0)},
		[]any{int64(103), int64(12), int64(3), int64(3), 10.00, int64(20)},
	)
}

func revenueOf(t *testing.T, tbl *table.Table, i int, col string) float64 {
	t.Helper()
	f, ok := table.Float64(tbl.Value(i, col))
	require.True(t, ok)
	return f
}

func TestBuildDailySales(t *testing.T) {
	b, store := newTestBuilder(t)
	ctx := context.Background()
	seedScenario(t, store)

	res, err := b.BuildDailySales(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)

	out, err := store.ReadTable(ctx, warehouse.TierProd, "daily_sales", nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	assert.Equal(t, "2025-01-02", out.Value(0, "order_date"))
	assert.InDelta(t, 84.98, revenueOf(t, out, 0, "total_revenue"), 0.001)
	assert.InDelta(t, 84.98, revenueOf(t, out, 0, "avg_order_value"), 0.001)

	items, ok := table.Int64(out.Value(0, "total_items"))
	require.True(t, ok)
	assert.Equal(t, int64(3), items)

	assert.Equal(t, "2025-02-01", out.Value(1, "order_date"))
	assert.InDelta(t, 24.00, revenueOf(t, out, 1, "total_revenue"), 0.001)
}

func TestBuildMonthlySalesConservesRevenue(t *testing.T) {
	b, store := newTestBuilder(t)
	ctx := context.Background()
	seedScenario(t, store)

	_, err := b.BuildDailySales(ctx)
	require.NoError(t, err)
	_, err = b.BuildMonthlySales(ctx)
	require.NoError(t, err)

	daily, err := store.ReadTable(ctx, warehouse.TierProd, "daily_sales", nil)
	require.NoError(t, err)
	monthly, err := store.ReadTable(ctx, warehouse.TierProd, "monthly_sales", nil)
	require.NoError(t, err)
	require.Equal(t, 2, monthly.Len())

	var dailySum, monthlySum float64
	for i := 0; i < daily.Len(); i++ {
		dailySum += revenueOf(t, daily, i, "total_revenue")
	}
	for i := 0; i < monthly.Len(); i++ {
		monthlySum += revenueOf(t, monthly, i, "total_revenue")
	}
	assert.InDelta(t, dailySum, monthlySum, 0.001)

	assert.Equal(t, "2025-01", monthly.Value(0, "year_month"))
	year, _ := table.Int64(monthly.Value(0, "year"))
	month, _ := table.Int64(monthly.Value(0, "month"))
	assert.Equal(t, int64(2025), year)
	assert.Equal(t, int64(1), month)
}

func TestBuildDailyCategoryMetrics(t *testing.T) {
	b, store := newTestBuilder(t)
	ctx := context.Background()
	seedScenario(t, store)

	res, err := b.BuildDailyCategoryMetrics(ctx)
	require.NoError(t, err)
	// day one spans Toys and Home, day two is Food only
	assert.Equal(t, int64(3), res.Rows)

	out, err := store.ReadTable(ctx, warehouse.TierProd, "daily_category_metrics", nil)
	require.NoError(t, err)
	assert.Equal(t, "Home", out.Value(0, "category"))
	assert.InDelta(t, 45.00, revenueOf(t, out, 0, "total_revenue"), 0.001)
	assert.Equal(t, "Toys", out.Value(1, "category"))
	assert.InDelta(t, 39.98, revenueOf(t, out, 1, "total_revenue"), 0.001)
}

func TestBuildDailyProductMetrics(t *testing.T) {
	b, store := newTestBuilder(t)
	ctx := context.Background()
	seedScenario(t, store)

	res, err := b.BuildDailyProductMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rows)

	out, err := store.ReadTable(ctx, warehouse.TierProd, "daily_product_metrics", nil)
	require.NoError(t, err)
	// first day sorts by revenue descending
	pid, _ := table.Int64(out.Value(0, "product_id"))
	assert.Equal(t, int64(2), pid)
	qty, _ := table.Int64(out.Value(1, "total_quantity"))
	assert.Equal(t, int64(2), qty)
}

func TestBuildCustomerMetrics(t *testing.T) {
	b, store := newTestBuilder(t)
	ctx := context.Background()
	seedScenario(t, store)

	res, err := b.BuildCustomerMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rows)

	out, err := store.ReadTable(ctx, warehouse.TierProd, "customer_metrics", nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	// sorted by revenue descending: jane, bob, carol
	id, _ := table.Int64(out.Value(0, "customer_id"))
	assert.Equal(t, int64(1), id)
	assert.InDelta(t, 84.98, revenueOf(t, out, 0, "total_revenue"), 0.001)
	assert.Equal(t, "2025-01-02", out.Value(0, "first_order_date"))

	since, ok := table.Int64(out.Value(0, "days_since_last_order"))
	require.True(t, ok)
	assert.Equal(t, int64(58), since)

	// carol never ordered: zero totals, null dates
	id, _ = table.Int64(out.Value(2, "customer_id"))
	assert.Equal(t, int64(3), id)
	orders, _ := table.Int64(out.Value(2, "total_orders"))
	assert.Zero(t, orders)
	assert.InDelta(t, 0.0, revenueOf(t, out, 2, "total_revenue"), 0.001)
	assert.Nil(t, out.Value(2, "first_order_date"))
	assert.Nil(t, out.Value(2, "days_since_first_order"))
}

func TestBuildAllEmptyStaging(t *testing.T) {
	b, store := newTestBuilder(t)
	ctx := context.Background()

	results, err := b.BuildAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for name, res := range results {
		assert.Zero(t, res.Rows, name)
	}

	n, err := store.Count(ctx, warehouse.TierProd, "daily_sales")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildAllIsIdempotent(t *testing.T) {
	b, store := newTestBuilder(t)
	ctx := context.Background()
	seedScenario(t, store)

	_, err := b.BuildAll(ctx)
	require.NoError(t, err)
	results, err := b.BuildAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), results["daily_sales"].Rows)
	n, err := store.Count(ctx, warehouse.TierProd, "daily_sales")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
