// Package ingest loads generated snapshot partitions into the raw tier
// verbatim. The raw tier is append-only: rows are never cleaned here,
// only stamped with ingestion metadata so later stages can trace every
// record back to its source partition.
package ingest

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/shoplake/etl/internal/entity"
	"github.com/shoplake/etl/internal/snapshot"
	"github.com/shoplake/etl/internal/warehouse"
	"github.com/shoplake/etl/pkg/errors"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/table"
)

// Metadata columns stamped on every raw row.
const (
	ColIngestedAt    = "_ingested_at"
	ColSourceFile    = "_source_file"
	ColPartitionDate = "_partition_date"
)

// Ingestor copies snapshot partitions into raw tables.
type Ingestor struct {
	store   *warehouse.Store
	logg    *logger.Logger
	dataDir string

	// now is swappable in tests so _ingested_at is predictable
	now func() time.Time
}

// Result summarizes one table's ingestion.
type Result struct {
	Table      string
	Partitions int
	Failed     int
	Rows       int64
}

func New(store *warehouse.Store, logg *logger.Logger, dataDir string) *Ingestor {
	return &Ingestor{store: store, logg: logg, dataDir: dataDir, now: time.Now}
}

// ListPartitions returns the partition days available on disk.
func (in *Ingestor) ListPartitions(entityName string) ([]string, error) {
	return snapshot.ListPartitions(in.dataDir, entityName)
}

// ListIngested returns the partition days already present in the raw
// table. A missing table reads as nothing ingested.
func (in *Ingestor) ListIngested(ctx context.Context, entityName string) (map[string]struct{}, error) {
	exists, err := in.store.TableExists(ctx, warehouse.TierRaw, entityName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]struct{}{}, nil
	}
	tbl, err := in.store.Query(ctx,
		"SELECT DISTINCT "+ColPartitionDate+" FROM "+in.store.Qualify(warehouse.TierRaw, entityName))
	if err != nil {
		return nil, errors.Wrap(errors.CodeConnection, err, "list ingested partitions")
	}
	out := make(map[string]struct{}, tbl.Len())
	for _, v := range tbl.Column(ColPartitionDate) {
		out[table.String(v)] = struct{}{}
	}
	return out, nil
}

// IngestPartition loads one partition, stamping the metadata columns.
// It returns the number of rows written; a missing partition is zero
// rows, not an error.
func (in *Ingestor) IngestPartition(ctx context.Context, ent entity.Entity, day string) (int64, error) {
	days, err := snapshot.ListPartitions(in.dataDir, ent.Name)
	if err != nil {
		return 0, errors.Wrap(errors.CodePartitionRead, err, "scan partitions")
	}
	found := false
	for _, d := range days {
		if d == day {
			found = true
			break
		}
	}
	if !found {
		in.logg.Warn(in.logg.WithPartition(ctx, day), "partition not found on disk")
		return 0, nil
	}

	tbl, err := snapshot.Read(in.dataDir, ent, day)
	if err != nil {
		return 0, errors.Wrap(errors.CodePartitionRead, err, "read partition "+ent.Name+"/"+day)
	}
	if tbl.Len() == 0 {
		return 0, nil
	}

	ingestedAt := in.now().UTC().Format(time.RFC3339)
	sourceFile := snapshot.PartitionPath(in.dataDir, ent.Name, day)
	stamped := tbl.
		WithColumn(ColIngestedAt, func(table.Row) any { return ingestedAt }).
		WithColumn(ColSourceFile, func(table.Row) any { return sourceFile }).
		WithColumn(ColPartitionDate, func(table.Row) any { return day })

	rows, err := in.store.WriteTable(ctx, warehouse.TierRaw, ent.Name, stamped, false)
	if err != nil {
		return rows, errors.Wrap(errors.CodeConnection, err, "write raw "+ent.Name)
	}

	pctx := in.logg.WithPartition(in.logg.WithTable(ctx, ent.Name), day)
	in.logg.Info(pctx, "ingested partition")
	return rows, nil
}

// IngestTable loads every pending partition of one entity. In
// incremental mode partitions already in the raw table are skipped. A
// failing partition is recorded and the remaining partitions still
// run; the combined error is returned at the end.
func (in *Ingestor) IngestTable(ctx context.Context, ent entity.Entity, incremental bool) (Result, error) {
	res := Result{Table: ent.Name}

	days, err := in.ListPartitions(ent.Name)
	if err != nil {
		return res, errors.Wrap(errors.CodePartitionRead, err, "list partitions")
	}

	if incremental {
		done, err := in.ListIngested(ctx, ent.Name)
		if err != nil {
			return res, err
		}
		pending := days[:0]
		for _, d := range days {
			if _, ok := done[d]; !ok {
				pending = append(pending, d)
			}
		}
		days = pending
	}

	var errs error
	for _, day := range days {
		rows, err := in.IngestPartition(ctx, ent, day)
		if err != nil {
			errs = multierr.Append(errs, err)
			res.Failed++
			in.logg.Error(in.logg.WithPartition(ctx, day), "partition failed", err)
			continue
		}
		res.Partitions++
		res.Rows += rows
	}
	return res, errs
}

// RefreshTable truncates one raw table and reloads every partition.
func (in *Ingestor) RefreshTable(ctx context.Context, ent entity.Entity) (Result, error) {
	if err := in.store.Truncate(ctx, warehouse.TierRaw, ent.Name); err != nil {
		return Result{Table: ent.Name}, errors.Wrap(errors.CodeConnection, err, "truncate raw "+ent.Name)
	}
	return in.IngestTable(ctx, ent, false)
}

// IngestAll runs every entity in dependency order.
func (in *Ingestor) IngestAll(ctx context.Context, incremental bool) (map[string]Result, error) {
	results := make(map[string]Result, 4)
	var errs error
	for _, ent := range entity.All() {
		tctx := in.logg.WithTable(ctx, ent.Name)
		res, err := in.IngestTable(tctx, ent, incremental)
		results[ent.Name] = res
		errs = multierr.Append(errs, err)
	}
	return results, errs
}

// TruncateAll empties the raw tables, children first.
func (in *Ingestor) TruncateAll(ctx context.Context) error {
	ents := entity.All()
	for i := len(ents) - 1; i >= 0; i-- {
		if err := in.store.Truncate(ctx, warehouse.TierRaw, ents[i].Name); err != nil {
			return err
		}
	}
	return nil
}
