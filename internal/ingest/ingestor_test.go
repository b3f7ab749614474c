package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shoplake/etl/internal/entity"
	"github.com/shoplake/etl/internal/snapshot"
	"github.com/shoplake/etl/internal/warehouse"
	"github.com/shoplake/etl/pkg/db"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/table"
)

func newTestIngestor(t *testing.T) (*Ingestor, *warehouse.Store, string) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store := warehouse.New(db.FromConn(conn), 100)
	require.NoError(t, store.EnsureSchema(context.Background()))

	dataDir := t.TempDir()
	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})

	in := New(store, logg, dataDir)
	in.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return in, store, dataDir
}

func writeCustomers(t *testing.T, dataDir, day string, ids ...int64) {
	t.Helper()
	tbl := table.New(entity.Customers.ColumnNames()...)
	for _, id := range ids {
		require.NoError(t, tbl.Append([]any{
			id, "Jane Roe", table.String(id) + "@example.com", "US", day, "Basic",
		}))
	}
	require.NoError(t, snapshot.Write(dataDir, entity.Customers, day, tbl))
}

func TestIngestPartitionStampsMetadata(t *testing.T) {
	in, store, dataDir := newTestIngestor(t)
	ctx := context.Background()
	writeCustomers(t, dataDir, "2025-01-01", 1, 2)

	rows, err := in.IngestPartition(ctx, entity.Customers, "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	out, err := store.ReadTable(ctx, warehouse.TierRaw, "customers", nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "2025-01-01", out.Value(0, ColPartitionDate))
	assert.Equal(t, "2025-06-01T12:00:00Z", out.Value(0, ColIngestedAt))
	assert.Contains(t, table.String(out.Value(0, ColSourceFile)), "customers/2025-01-01/data.csv")
}

func TestIngestPartitionMissingIsZero(t *testing.T) {
	in, _, _ := newTestIngestor(t)

	rows, err := in.IngestPartition(context.Background(), entity.Customers, "2025-01-01")
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestIngestTableIncrementalSkipsDone(t *testing.T) {
	in, _, dataDir := newTestIngestor(t)
	ctx := context.Background()
	writeCustomers(t, dataDir, "2025-01-01", 1)
	writeCustomers(t, dataDir, "2025-01-02", 2)

	res, err := in.IngestTable(ctx, entity.Customers, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Partitions)
	assert.Equal(t, int64(2), res.Rows)

	// second incremental run finds nothing new
	res, err = in.IngestTable(ctx, entity.Customers, true)
	require.NoError(t, err)
	assert.Zero(t, res.Partitions)
	assert.Zero(t, res.Rows)

	// a fresh partition is picked up
	writeCustomers(t, dataDir, "2025-01-03", 3)
	res, err = in.IngestTable(ctx, entity.Customers, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Partitions)
}

func TestIngestTableFullModeAppends(t *testing.T) {
	in, store, dataDir := newTestIngestor(t)
	ctx := context.Background()
	writeCustomers(t, dataDir, "2025-01-01", 1)

	_, err := in.IngestTable(ctx, entity.Customers, false)
	require.NoError(t, err)
	_, err = in.IngestTable(ctx, entity.Customers, false)
	require.NoError(t, err)

	// raw tier is append-only, full mode duplicates rows
	n, err := store.Count(ctx, warehouse.TierRaw, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRefreshTableReloadsWithoutDuplicates(t *testing.T) {
	in, store, dataDir := newTestIngestor(t)
	ctx := context.Background()
	writeCustomers(t, dataDir, "2025-01-01", 1)
	writeCustomers(t, dataDir, "2025-01-02", 2)

	_, err := in.IngestTable(ctx, entity.Customers, true)
	require.NoError(t, err)

	res, err := in.RefreshTable(ctx, entity.Customers)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Partitions)
	assert.Equal(t, int64(2), res.Rows)

	n, err := store.Count(ctx, warehouse.TierRaw, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIngestAllCoversEveryEntity(t *testing.T) {
	in, store, dataDir := newTestIngestor(t)
	ctx := context.Background()
	writeCustomers(t, dataDir, "2025-01-01", 1)

	products := table.New(entity.Products.ColumnNames()...)
	require.NoError(t, products.Append([]any{int64(1), "Widget", "Toys", 19.99, 10.00}))
	require.NoError(t, snapshot.Write(dataDir, entity.Products, "2025-01-01", products))

	results, err := in.IngestAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), results["customers"].Rows)
	assert.Equal(t, int64(1), results["products"].Rows)
	assert.Zero(t, results["orders"].Rows)

	require.NoError(t, in.TruncateAll(ctx))
	n, err := store.Count(ctx, warehouse.TierRaw, "customers")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListIngested(t *testing.T) {
	in, _, dataDir := newTestIngestor(t)
	ctx := context.Background()
	writeCustomers(t, dataDir, "2025-01-01", 1)

	done, err := in.ListIngested(ctx, "customers")
	require.NoError(t, err)
	assert.Empty(t, done)

	_, err = in.IngestPartition(ctx, entity.Customers, "2025-01-01")
	require.NoError(t, err)

	done, err = in.ListIngested(ctx, "customers")
	require.NoError(t, err)
	_, ok := done["2025-01-01"]
	assert.True(t, ok)
}

func TestIngestTableCountsFailedPartitions(t *testing.T) {
	in, _, dataDir := newTestIngestor(t)
	ctx := context.Background()

	writeCustomers(t, dataDir, "2025-01-01", 1)

	// a partition whose header does not match the entity
	bad := filepath.Join(dataDir, "customers", "2025-01-02")
	require.NoError(t, os.MkdirAll(bad, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "data.csv"), []byte("wrong,header\n1,2\n"), 0o644))

	res, err := in.IngestTable(ctx, entity.Customers, false)
	require.Error(t, err)
	assert.Equal(t, 1, res.Partitions)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(1), res.Rows)
}
