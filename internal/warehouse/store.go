// Package warehouse is the pipeline's storage layer. It maps the three
// logical tiers (raw, staging, prod) onto the active database: postgres
// gets real schemas, sqlite gets a name prefix so the same code runs
// against the in-memory test database.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/shoplake/etl/pkg/config"
	"github.com/shoplake/etl/pkg/db"
	"github.com/shoplake/etl/pkg/table"
)

// Tier names the warehouse namespaces.
const (
	TierRaw     = "raw"
	TierStaging = "staging"
	TierProd    = "prod"
)

// Store executes tier-aware reads and writes against the warehouse.
type Store struct {
	client    *db.Client
	batchSize int
}

// New wraps a database client. batchSize bounds insert chunks; zero
// falls back to the configured default.
func New(client *db.Client, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Store{client: client, batchSize: batchSize}
}

// Dialect reports the active database driver name.
func (s *Store) Dialect() string {
	return s.client.Dialect()
}

// Qualify maps a tier and table name to the dialect's table reference.
func (s *Store) Qualify(tier, name string) string {
	if s.Dialect() == config.DriverSQLite {
		return tier + "_" + name
	}
	return tier + "." + name
}

// TableExists reports whether the tier's table is present.
func (s *Store) TableExists(ctx context.Context, tier, name string) (bool, error) {
	var count int64
	var res error
	if s.Dialect() == config.DriverSQLite {
		res = s.client.Raw(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
			tier+"_"+name,
		).Scan(&count).Error
	} else {
		res = s.client.Raw(ctx,
			"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
			tier, name,
		).Scan(&count).Error
	}
	if res != nil {
		return false, fmt.Errorf("check table %s.%s: %w", tier, name, res)
	}
	return count > 0, nil
}

// Truncate empties the tier's table.
func (s *Store) Truncate(ctx context.Context, tier, name string) error {
	ref := s.Qualify(tier, name)
	stmt := "TRUNCATE TABLE " + ref
	if s.Dialect() == config.DriverSQLite {
		stmt = "DELETE FROM " + ref
	}
	if err := s.client.Exec(ctx, stmt).Error; err != nil {
		return fmt.Errorf("truncate %s: %w", ref, err)
	}
	return nil
}

// Count returns the row count of the tier's table.
func (s *Store) Count(ctx context.Context, tier, name string) (int64, error) {
	var n int64
	err := s.client.Raw(ctx, "SELECT COUNT(*) FROM "+s.Qualify(tier, name)).Scan(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", tier, name, err)
	}
	return n, nil
}

// Exec runs a raw statement; tier placeholders are not rewritten, the
// caller passes already qualified references via Qualify.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	return s.client.Exec(ctx, query, args...).Error
}

// Query runs a select and materializes the result into a table, keeping
// the result's column order.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*table.Table, error) {
	rows, err := s.client.Raw(ctx, query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	tbl := table.New(cols...)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		if err := tbl.Append(vals); err != nil {
			return nil, err
		}
	}
	return tbl, rows.Err()
}

// ReadTable loads the full contents of a tier's table.
func (s *Store) ReadTable(ctx context.Context, tier, name string, cols []string) (*table.Table, error) {
	sel := "*"
	if len(cols) > 0 {
		sel = strings.Join(cols, ", ")
	}
	return s.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", sel, s.Qualify(tier, name)))
}

// WriteTable appends the table's rows in batches. With replace set, the
// target is truncated first. It returns the number of rows written.
func (s *Store) WriteTable(ctx context.Context, tier, name string, tbl *table.Table, replace bool) (int64, error) {
	if replace {
		if err := s.Truncate(ctx, tier, name); err != nil {
			return 0, err
		}
	}
	maps := tbl.Maps()
	ref := s.Qualify(tier, name)
	var written int64
	for start := 0; start < len(maps); start += s.batchSize {
		end := start + s.batchSize
		if end > len(maps) {
			end = len(maps)
		}
		chunk := maps[start:end]
		if err := s.client.DB().WithContext(ctx).Table(ref).Create(chunk).Error; err != nil {
			return written, fmt.Errorf("insert into %s: %w", ref, err)
		}
		written += int64(len(chunk))
	}
	return written, nil
}
