// Package aggregate rebuilds the prod tier from staging. Every metric
// counts completed orders only; revenue is recomputed from line items
// rather than trusting the order totals.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shoplake/etl/internal/warehouse"
	"github.com/shoplake/etl/pkg/errors"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/table"
)

// revenueExpr recomputes line revenue net of discount. The 100.0
// literal keeps the division fractional on both dialects.
const revenueExpr = "SUM(oi.quantity * oi.unit_price * (1 - oi.discount_percent / 100.0))"

const dayFormat = "2006-01-02"

// Builder produces the prod aggregation tables.
type Builder struct {
	store *warehouse.Store
	logg  *logger.Logger

	// now feeds the customer recency metrics; swappable in tests
	now func() time.Time
}

// Result reports one built table.
type Result struct {
	Table string
	Rows  int64
}

func New(store *warehouse.Store, logg *logger.Logger) *Builder {
	return &Builder{store: store, logg: logg, now: time.Now}
}

func (b *Builder) stagingRef(name string) string {
	return b.store.Qualify(warehouse.TierStaging, name)
}

// BuildDailySales aggregates completed orders per calendar day.
func (b *Builder) BuildDailySales(ctx context.Context) (Result, error) {
	query := fmt.Sprintf(`
		SELECT
			o.order_date,
			COUNT(DISTINCT o.order_id) AS total_orders,
			SUM(oi.quantity) AS total_items,
			%s AS total_revenue,
			COUNT(DISTINCT o.customer_id) AS total_customers
		FROM %s o
		JOIN %s oi ON o.order_id = oi.order_id
		WHERE o.order_status = 'completed'
		GROUP BY o.order_date
		ORDER BY o.order_date`,
		revenueExpr, b.stagingRef("orders"), b.stagingRef("order_items"))

	tbl, err := b.store.Query(ctx, query)
	if err != nil {
		return Result{Table: "daily_sales"}, errors.Wrap(errors.CodeConnection, err, "aggregate daily sales")
	}

	tbl = roundColumn(tbl, "total_revenue")
	tbl = withAvgOrderValue(tbl, "total_revenue", "total_orders")
	return b.load(ctx, "daily_sales", tbl)
}

// BuildMonthlySales aggregates completed orders per calendar month.
// Dates are ISO strings, so the month is a prefix and the parts are
// substrings; this works identically on postgres and sqlite.
func (b *Builder) BuildMonthlySales(ctx context.Context) (Result, error) {
	query := fmt.Sprintf(`
		SELECT
			substr(o.order_date, 1, 7) AS year_month,
			CAST(substr(o.order_date, 1, 4) AS INTEGER) AS year,
			CAST(substr(o.order_date, 6, 2) AS INTEGER) AS month,
			COUNT(DISTINCT o.order_id) AS total_orders,
			SUM(oi.quantity) AS total_items,
			%s AS total_revenue,
			COUNT(DISTINCT o.customer_id) AS total_customers
		FROM %s o
		JOIN %s oi ON o.order_id = oi.order_id
		WHERE o.order_status = 'completed'
		GROUP BY substr(o.order_date, 1, 7), substr(o.order_date, 1, 4), substr(o.order_date, 6, 2)
		ORDER BY year_month`,
		revenueExpr, b.stagingRef("orders"), b.stagingRef("order_items"))

	tbl, err := b.store.Query(ctx, query)
	if err != nil {
		return Result{Table: "monthly_sales"}, errors.Wrap(errors.CodeConnection, err, "aggregate monthly sales")
	}

	tbl = roundColumn(tbl, "total_revenue")
	tbl = withAvgOrderValue(tbl, "total_revenue", "total_orders")
	return b.load(ctx, "monthly_sales", tbl)
}

// BuildDailyCategoryMetrics aggregates per day and product category.
func (b *Builder) BuildDailyCategoryMetrics(ctx context.Context) (Result, error) {
	query := fmt.Sprintf(`
		SELECT
			o.order_date,
			p.category,
			COUNT(DISTINCT o.order_id) AS total_orders,
			SUM(oi.quantity) AS total_items,
			%s AS total_revenue,
			COUNT(DISTINCT o.customer_id) AS unique_customers,
			COUNT(DISTINCT p.product_id) AS unique_products
		FROM %s o
		JOIN %s oi ON o.order_id = oi.order_id
		JOIN %s p ON oi.product_id = p.product_id
		WHERE o.order_status = 'completed'
		GROUP BY o.order_date, p.category
		ORDER BY o.order_date, p.category`,
		revenueExpr, b.stagingRef("orders"), b.stagingRef("order_items"), b.stagingRef("products"))

	tbl, err := b.store.Query(ctx, query)
	if err != nil {
		return Result{Table: "daily_category_metrics"}, errors.Wrap(errors.CodeConnection, err, "aggregate category metrics")
	}

	tbl = roundColumn(tbl, "total_revenue")
	return b.load(ctx, "daily_category_metrics", tbl)
}

// BuildDailyProductMetrics aggregates per day and product.
func (b *Builder) BuildDailyProductMetrics(ctx context.Context) (Result, error) {
	query := fmt.Sprintf(`
		SELECT
			o.order_date,
			p.product_id,
			p.product_name,
			p.category,
			COUNT(DISTINCT o.order_id) AS total_orders,
			SUM(oi.quantity) AS total_quantity,
			%s AS total_revenue,
			COUNT(DISTINCT o.customer_id) AS unique_customers
		FROM %s o
		JOIN %s oi ON o.order_id = oi.order_id
		JOIN %s p ON oi.product_id = p.product_id
		WHERE o.order_status = 'completed'
		GROUP BY o.order_date, p.product_id, p.product_name, p.category
		ORDER BY o.order_date, total_revenue DESC`,
		revenueExpr, b.stagingRef("orders"), b.stagingRef("order_items"), b.stagingRef("products"))

	tbl, err := b.store.Query(ctx, query)
	if err != nil {
		return Result{Table: "daily_product_metrics"}, errors.Wrap(errors.CodeConnection, err, "aggregate product metrics")
	}

	tbl = roundColumn(tbl, "total_revenue")
	return b.load(ctx, "daily_product_metrics", tbl)
}

// BuildCustomerMetrics aggregates lifetime value per customer. Left
// joins keep customers who never completed an order, with zeroed
// totals and null order dates.
func (b *Builder) BuildCustomerMetrics(ctx context.Context) (Result, error) {
	query := fmt.Sprintf(`
		SELECT
			c.customer_id,
			c.customer_name,
			c.customer_segment,
			MIN(o.order_date) AS first_order_date,
			MAX(o.order_date) AS last_order_date,
			COUNT(DISTINCT o.order_id) AS total_orders,
			COALESCE(SUM(oi.quantity), 0) AS total_items,
			COALESCE(%s, 0) AS total_revenue
		FROM %s c
		LEFT JOIN %s o ON c.customer_id = o.customer_id AND o.order_status = 'completed'
		LEFT JOIN %s oi ON o.order_id = oi.order_id
		GROUP BY c.customer_id, c.customer_name, c.customer_segment
		ORDER BY total_revenue DESC`,
		revenueExpr, b.stagingRef("customers"), b.stagingRef("orders"), b.stagingRef("order_items"))

	tbl, err := b.store.Query(ctx, query)
	if err != nil {
		return Result{Table: "customer_metrics"}, errors.Wrap(errors.CodeConnection, err, "aggregate customer metrics")
	}

	tbl = roundColumn(tbl, "total_revenue")
	tbl = withAvgOrderValue(tbl, "total_revenue", "total_orders")

	today := b.now().UTC()
	tbl = tbl.WithColumn("days_since_first_order", daysSince(today, "first_order_date"))
	tbl = tbl.WithColumn("days_since_last_order", daysSince(today, "last_order_date"))

	return b.load(ctx, "customer_metrics", tbl)
}

// BuildAll rebuilds every prod table.
func (b *Builder) BuildAll(ctx context.Context) (map[string]Result, error) {
	results := make(map[string]Result, 5)
	steps := []func(context.Context) (Result, error){
		b.BuildDailySales,
		b.BuildMonthlySales,
		b.BuildDailyCategoryMetrics,
		b.BuildDailyProductMetrics,
		b.BuildCustomerMetrics,
	}
	for _, step := range steps {
		res, err := step(ctx)
		results[res.Table] = res
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (b *Builder) load(ctx context.Context, name string, tbl *table.Table) (Result, error) {
	rows, err := b.store.WriteTable(ctx, warehouse.TierProd, name, tbl, true)
	if err != nil {
		return Result{Table: name, Rows: rows}, errors.Wrap(errors.CodeConnection, err, "write prod "+name)
	}
	tctx := b.logg.WithTable(ctx, name)
	b.logg.Info(b.logg.WithField(tctx, "rows", rows), "prod table rebuilt")
	return Result{Table: name, Rows: rows}, nil
}

// roundColumn rounds a numeric column to two decimal places using
// decimal arithmetic so both dialects land on identical values.
func roundColumn(tbl *table.Table, col string) *table.Table {
	return tbl.MapColumn(col, func(v any) any {
		f, ok := table.Float64(v)
		if !ok {
			return v
		}
		return decimal.NewFromFloat(f).Round(2).InexactFloat64()
	})
}

// withAvgOrderValue divides revenue by order count, guarding the
// zero-order case.
func withAvgOrderValue(tbl *table.Table, revenueCol, ordersCol string) *table.Table {
	return tbl.WithColumn("avg_order_value", func(r table.Row) any {
		revenue, okR := table.Float64(r.Get(revenueCol))
		orders, okO := table.Int64(r.Get(ordersCol))
		if !okR || !okO || orders == 0 {
			return 0.0
		}
		return decimal.NewFromFloat(revenue).
			Div(decimal.NewFromInt(orders)).
			Round(2).InexactFloat64()
	})
}

// daysSince maps an ISO date column to whole days before today, nil
// for customers with no completed orders.
func daysSince(today time.Time, col string) func(table.Row) any {
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return func(r table.Row) any {
		v := r.Get(col)
		if v == nil {
			return nil
		}
		d, err := time.Parse(dayFormat, table.String(v))
		if err != nil {
			return nil
		}
		return int64(midnight.Sub(d).Hours() / 24)
	}
}
