package warehouse

import (
	"context"
	"fmt"

	"github.com/shoplake/etl/pkg/config"
)

// tableDDL holds per-table column definitions, shared by every tier the
// table appears in. Dates are stored as ISO yyyy-mm-dd text so ordering
// and month grouping behave identically on postgres and sqlite.
var sourceDDL = map[string]string{
	"customers": `(
		customer_id BIGINT NOT NULL,
		customer_name VARCHAR(200),
		email VARCHAR(200),
		country VARCHAR(100),
		signup_date VARCHAR(10),
		customer_segment VARCHAR(20)%s
	)`,
	"products": `(
		product_id BIGINT NOT NULL,
		product_name VARCHAR(200),
		category VARCHAR(50),
		price NUMERIC(10,2),
		cost NUMERIC(10,2)%s
	)`,
	"orders": `(
		order_id BIGINT NOT NULL,
		customer_id BIGINT,
		order_date VARCHAR(10),
		order_status VARCHAR(20),
		total_amount NUMERIC(12,2)%s
	)`,
	"order_items": `(
		order_item_id BIGINT NOT NULL,
		order_id BIGINT,
		product_id BIGINT,
		quantity BIGINT,
		unit_price NUMERIC(10,2),
		discount_percent BIGINT%s
	)`,
}

var prodDDL = map[string]string{
	"daily_sales": `(
		order_date VARCHAR(10) NOT NULL,
		total_orders BIGINT,
		total_items BIGINT,
		total_revenue NUMERIC(14,2),
		total_customers BIGINT,
		avg_order_value NUMERIC(12,2)
	)`,
	"monthly_sales": `(
		year_month VARCHAR(7) NOT NULL,
		year BIGINT,
		month BIGINT,
		total_orders BIGINT,
		total_items BIGINT,
		total_revenue NUMERIC(14,2),
		total_customers BIGINT,
		avg_order_value NUMERIC(12,2)
	)`,
	"daily_category_metrics": `(
		order_date VARCHAR(10) NOT NULL,
		category VARCHAR(50) NOT NULL,
		total_orders BIGINT,
		total_items BIGINT,
		total_revenue NUMERIC(14,2),
		unique_customers BIGINT,
		unique_products BIGINT
	)`,
	"daily_product_metrics": `(
		order_date VARCHAR(10) NOT NULL,
		product_id BIGINT NOT NULL,
		product_name VARCHAR(200),
		category VARCHAR(50),
		total_orders BIGINT,
		total_quantity BIGINT,
		total_revenue NUMERIC(14,2),
		unique_customers BIGINT
	)`,
	"customer_metrics": `(
		customer_id BIGINT NOT NULL,
		customer_name VARCHAR(200),
		customer_segment VARCHAR(20),
		first_order_date VARCHAR(10),
		last_order_date VARCHAR(10),
		total_orders BIGINT,
		total_items BIGINT,
		total_revenue NUMERIC(14,2),
		avg_order_value NUMERIC(12,2),
		days_since_first_order BIGINT,
		days_since_last_order BIGINT
	)`,
}

// rawMeta is appended to every raw-tier table.
const rawMeta = `,
		_ingested_at VARCHAR(32),
		_source_file VARCHAR(512),
		_partition_date VARCHAR(10)`

// stagingMeta is appended to every staging-tier table.
const stagingMeta = `,
		created_at VARCHAR(32),
		updated_at VARCHAR(32)`

// EnsureSchema creates every warehouse table that does not yet exist.
// Postgres deployments normally run the goose migrations instead; this
// path serves sqlite, where there is no migration dir.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.Dialect() != config.DriverSQLite {
		for _, tier := range []string{TierRaw, TierStaging, TierProd} {
			if err := s.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+tier); err != nil {
				return fmt.Errorf("create schema %s: %w", tier, err)
			}
		}
	}
	for name, ddl := range sourceDDL {
		if err := s.createTable(ctx, TierRaw, name, fmt.Sprintf(ddl, rawMeta)); err != nil {
			return err
		}
		if err := s.createTable(ctx, TierStaging, name, fmt.Sprintf(ddl, stagingMeta)); err != nil {
			return err
		}
	}
	for name, ddl := range prodDDL {
		if err := s.createTable(ctx, TierProd, name, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createTable(ctx context.Context, tier, name, body string) error {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", s.Qualify(tier, name), body)
	if err := s.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create %s.%s: %w", tier, name, err)
	}
	return nil
}
