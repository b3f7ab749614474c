package staging

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

func newTestTransformer(t *testing.T) (*Transformer, *warehouse.Store) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store := warehouse.New(db.FromConn(conn), 100)
	require.NoError(t, store.EnsureSchema(context.Background()))

	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
	tr := New(store, logg)
	tr.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return tr, store
}

func seedRaw(t *testing.T, store *warehouse.Store, name string, cols []string, rows ...[]any) {
	t.Helper()
	tbl := table.New(cols...)
	for _, r := range rows {
		require.NoError(t, tbl.Append(r))
	}
	_, err := store.WriteTable(context.Background(), warehouse.TierRaw, name, tbl, false)
	require.NoError(t, err)
}

func TestCapitalizeWords(t *testing.T) {
	assert.Equal(t, "Jane Roe", capitalizeWords("jane roe"))
	assert.Equal(t, "Jane Roe", capitalizeWords("JANE ROE"))
	assert.Nil(t, capitalizeWords(nil))
	assert.Equal(t, "", capitalizeWords(""))
}

func TestTransformCustomers(t *testing.T) {
	tr, store := newTestTransformer(t)
	ctx := context.Background()

	seedRaw(t, store, "customers", entity.Customers.ColumnNames(),
		[]any{int64(1), "jane roe", "jane@example.com", "US", "2025-01-01", "Premium"},
		[]any{int64(1), "other row", "dup@example.com", "DE", "2025-01-01", "Basic"},
		[]any{int64(2), "bob stone", "bob_at_example.com", "FR", "2025-01-01", "Basic"},
		[]any{int64(3), nil, "noname@example.com", "FR", "2025-01-01", "Basic"},
		[]any{int64(4), "carol dae", "carol@example.com", nil, "2025-01-02", nil},
	)

	out, err := tr.TransformCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, out.RowsRead)
	assert.Equal(t, 1, out.DuplicatesRemoved)
	assert.Equal(t, 1, out.DroppedInvalid) // mangled email
	assert.Equal(t, 1, out.DroppedNulls)   // null name
	assert.Equal(t, int64(2), out.RowsWritten)

	stg, err := store.ReadTable(ctx, warehouse.TierStaging, "customers", entity.Customers.ColumnNames())
	require.NoError(t, err)
	require.Equal(t, 2, stg.Len())
	assert.Equal(t, "Jane Roe", stg.Value(0, "customer_name"))
	assert.Equal(t, "Unknown", stg.Value(1, "country"))
	assert.Equal(t, "Standard", stg.Value(1, "customer_segment"))

	stamped, err := store.ReadTable(ctx, warehouse.TierStaging, "customers", []string{"created_at", "updated_at"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12:00:00Z", stamped.Value(0, "created_at"))
	assert.Equal(t, stamped.Value(0, "created_at"), stamped.Value(0, "updated_at"))
}

func TestTransformCustomersIsIdempotent(t *testing.T) {
	tr, _ := newTestTransformer(t)
	ctx := context.Background()

	seedRaw(t, tr.store, "customers", entity.Customers.ColumnNames(),
		[]any{int64(1), "jane roe", "jane@example.com", "US", "2025-01-01", "Premium"},
	)

	first, err := tr.TransformCustomers(ctx)
	require.NoError(t, err)
	second, err := tr.TransformCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.RowsWritten, second.RowsWritten)

	n, err := tr.store.Count(ctx, warehouse.TierStaging, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTransformProductsDedupesDailyCopies(t *testing.T) {
	tr, store := newTestTransformer(t)
	ctx := context.Background()

	// same catalog ingested from three daily partitions
	for i := 0; i < 3; i++ {
		seedRaw(t, store, "products", entity.Products.ColumnNames(),
			[]any{int64(1), "adaptive local system", "Toys", 19.99, 10.00},
			[]any{int64(2), "modular global hub", "Home", 50.00, 25.00},
		)
	}
	seedRaw(t, store, "products", entity.Products.ColumnNames(),
		[]any{int64(3), "broken", "Food", -1.00, 5.00},
	)

	out, err := tr.TransformProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, out.RowsRead)
	assert.Equal(t, 4, out.DuplicatesRemoved)
	assert.Equal(t, 1, out.DroppedInvalid) // negative price
	assert.Equal(t, int64(2), out.RowsWritten)

	stg, err := store.ReadTable(ctx, warehouse.TierStaging, "products", entity.Products.ColumnNames())
	require.NoError(t, err)
	assert.Equal(t, "Adaptive Local System", stg.Value(0, "product_name"))
}

func TestTransformOrdersEnforcesReferences(t *testing.T) {
	tr, store := newTestTransformer(t)
	ctx := context.Background()

	seedRaw(t, store, "customers", entity.Customers.ColumnNames(),
		[]any{int64(1), "jane roe", "jane@example.com", "US", "2025-01-01", "Premium"},
	)
	_, err := tr.TransformCustomers(ctx)
	require.NoError(t, err)

	seedRaw(t, store, "orders", entity.Orders.ColumnNames(),
		[]any{int64(10), int64(1), "2025-01-02", "completed", 100.00},
		[]any{int64(10), int64(1), "2025-01-02", "completed", 100.00}, // verbatim dup
		[]any{int64(11), int64(999), "2025-01-02", "completed", 50.00},
		[]any{int64(12), int64(1), "2025-01-02", "shipped", 50.00},
		[]any{int64(13), int64(1), "2025-01-02", "pending", -5.00},
	)

	out, err := tr.TransformOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.DuplicatesRemoved)
	assert.Equal(t, 1, out.DroppedOrphans) // unknown customer
	assert.Equal(t, 2, out.DroppedInvalid) // bad status, negative amount
	assert.Equal(t, int64(1), out.RowsWritten)
}

func TestTransformOrderItems(t *testing.T) {
	tr, store := newTestTransformer(t)
	ctx := context.Background()

	seedRaw(t, store, "customers", entity.Customers.ColumnNames(),
		[]any{int64(1), "jane roe", "jane@example.com", "US", "2025-01-01", "Premium"},
	)
	seedRaw(t, store, "products", entity.Products.ColumnNames(),
		[]any{int64(1), "widget", "Toys", 19.99, 10.00},
	)
	seedRaw(t, store, "orders", entity.Orders.ColumnNames(),
		[]any{int64(10), int64(1), "2025-01-02", "completed", 39.98},
	)
	_, err := tr.TransformAll(ctx)
	require.NoError(t, err)

	seedRaw(t, store, "order_items", entity.OrderItems.ColumnNames(),
		[]any{int64(100), int64(10), int64(1), int64(2), 19.99, int64(0)},
		[]any{int64(101), int64(99), int64(1), int64(1), 19.99, int64(0)},   // unknown order
		[]any{int64(102), int64(10), int64(55), int64(1), 19.99, int64(0)},  // unknown product
		[]any{int64(103), int64(10), int64(1), int64(1), 19.99, int64(150)}, // discount out of range
		[]any{int64(104), int64(10), int64(1), int64(1), 19.99, nil},        // null discount filled
	)

	out, err := tr.TransformOrderItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, out.DroppedOrphans)
	assert.Equal(t, 1, out.DroppedInvalid)
	assert.Equal(t, int64(2), out.RowsWritten)

	stg, err := store.ReadTable(ctx, warehouse.TierStaging, "order_items", entity.OrderItems.ColumnNames())
	require.NoError(t, err)
	disc, ok := table.Int64(stg.Value(1, "discount_percent"))
	require.True(t, ok)
	assert.Zero(t, disc)
}

func TestTransformAllOrder(t *testing.T) {
	tr, store := newTestTransformer(t)
	ctx := context.Background()

	seedRaw(t, store, "customers", entity.Customers.ColumnNames(),
		[]any{int64(1), "jane roe", "jane@example.com", "US", "2025-01-01", "Premium"},
	)
	seedRaw(t, store, "products", entity.Products.ColumnNames(),
		[]any{int64(1), "widget", "Toys", 19.99, 10.00},
	)
	seedRaw(t, store, "orders", entity.Orders.ColumnNames(),
		[]any{int64(10), int64(1), "2025-01-02", "completed", 19.99},
	)
	seedRaw(t, store, "order_items", entity.OrderItems.ColumnNames(),
		[]any{int64(100), int64(10), int64(1), int64(1), 19.99, int64(0)},
	)

	results, err := tr.TransformAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, name := range []string{"customers", "products", "orders", "order_items"} {
		assert.Equal(t, int64(1), results[name].RowsWritten, name)
	}
}
