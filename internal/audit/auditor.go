// Package audit runs end-to-end checks across all three warehouse
// tiers after a pipeline run: tables exist, data flowed, the
// raw-to-staging loss stayed in budget, and the business invariants
// hold. It reports findings instead of failing fast so one run gives
// the full picture.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shoplake/etl/internal/entity"
	"github.com/shoplake/etl/internal/ingest"
	"github.com/shoplake/etl/internal/validate"
	"github.com/shoplake/etl/internal/warehouse"
	"github.com/shoplake/etl/pkg/enums"
	"github.com/shoplake/etl/pkg/errors"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/table"
)

// prodTables are the aggregation tables the prod tier must carry.
var prodTables = []string{
	"daily_sales", "monthly_sales", "customer_metrics",
	"daily_category_metrics", "daily_product_metrics",
}

// Check is one audit finding.
type Check struct {
	Name    string
	Passed  bool
	Details string
}

// Report collects every finding of a run.
type Report struct {
	Checks    []Check
	StartedAt time.Time
}

// Passed reports whether every check passed.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the failing checks.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// PassRate is the fraction of checks that passed.
func (r *Report) PassRate() float64 {
	if len(r.Checks) == 0 {
		return 0
	}
	return float64(len(r.Checks)-len(r.Failed())) / float64(len(r.Checks))
}

// Auditor inspects the warehouse after a pipeline run.
type Auditor struct {
	store       *warehouse.Store
	logg        *logger.Logger
	maxDataLoss float64

	now func() time.Time
}

func New(store *warehouse.Store, logg *logger.Logger, maxDataLoss float64) *Auditor {
	if maxDataLoss <= 0 {
		maxDataLoss = 0.20
	}
	return &Auditor{store: store, logg: logg, maxDataLoss: maxDataLoss, now: time.Now}
}

func (a *Auditor) record(ctx context.Context, rep *Report, name string, passed bool, details string) {
	rep.Checks = append(rep.Checks, Check{Name: name, Passed: passed, Details: details})
	cctx := a.logg.WithField(ctx, "check", name)
	if passed {
		a.logg.Debug(cctx, "audit check passed")
	} else {
		a.logg.Warn(a.logg.WithField(cctx, "details", details), "audit check failed")
	}
}

// CheckTables verifies every tier table exists.
func (a *Auditor) CheckTables(ctx context.Context, rep *Report) {
	for _, tier := range []string{warehouse.TierRaw, warehouse.TierStaging} {
		for _, ent := range entity.All() {
			ok, err := a.store.TableExists(ctx, tier, ent.Name)
			a.record(ctx, rep, fmt.Sprintf("table %s.%s exists", tier, ent.Name),
				err == nil && ok, errDetails(err, "table not found"))
		}
	}
	for _, name := range prodTables {
		ok, err := a.store.TableExists(ctx, warehouse.TierProd, name)
		a.record(ctx, rep, fmt.Sprintf("table prod.%s exists", name),
			err == nil && ok, errDetails(err, "table not found"))
	}
}

// CheckDataFlow verifies each tier holds data and raw-to-staging loss
// stays inside the configured budget.
func (a *Auditor) CheckDataFlow(ctx context.Context, rep *Report) {
	counts := map[string]int64{}
	for tier, names := range map[string][]string{
		warehouse.TierRaw:     {"customers", "orders"},
		warehouse.TierStaging: {"customers", "orders"},
		warehouse.TierProd:    {"customer_metrics", "daily_sales"},
	} {
		for _, name := range names {
			n, err := a.store.Count(ctx, tier, name)
			if err != nil {
				n = 0
			}
			counts[tier+"."+name] = n
		}
	}

	for key, label := range map[string]string{
		"raw.customers":         "raw tier has customer data",
		"raw.orders":            "raw tier has order data",
		"staging.customers":     "staging tier has customer data",
		"staging.orders":        "staging tier has order data",
		"prod.customer_metrics": "prod tier has customer metrics",
		"prod.daily_sales":      "prod tier has daily sales",
	} {
		a.record(ctx, rep, label, counts[key] > 0, fmt.Sprintf("found %d rows", counts[key]))
	}

	rawCustomers := counts["raw.customers"]
	stgCustomers := counts["staging.customers"]
	if rawCustomers > 0 && stgCustomers > 0 {
		loss := float64(rawCustomers-stgCustomers) / float64(rawCustomers)
		a.record(ctx, rep,
			fmt.Sprintf("customer data loss below %.0f%%", a.maxDataLoss*100),
			loss < a.maxDataLoss, fmt.Sprintf("loss %.1f%%", loss*100))
	}
}

// CheckStagingQuality runs the rule engine over each staging table.
func (a *Auditor) CheckStagingQuality(ctx context.Context, rep *Report) {
	customers := a.readStaging(ctx, rep, "customers", entity.Customers.ColumnNames())
	products := a.readStaging(ctx, rep, "products", entity.Products.ColumnNames())
	orders := a.readStaging(ctx, rep, "orders", entity.Orders.ColumnNames())
	items := a.readStaging(ctx, rep, "order_items", entity.OrderItems.ColumnNames())
	if customers == nil || products == nil || orders == nil || items == nil {
		return
	}

	today := a.now().UTC().Format("2006-01-02")

	engines := []*validate.Engine{
		validate.NewEngine(customers, "staging.customers").
			CheckUnique("customer_id", "email").
			CheckNoNulls("customer_id", "customer_name", "email", "signup_date").
			CheckEmailFormat("email"),
		validate.NewEngine(products, "staging.products").
			CheckUnique("product_id").
			CheckValueRange("price", validate.Float(0), nil).
			CheckValueRange("cost", validate.Float(0), nil).
			CheckLogical("positive_price", "price is above zero", func(r table.Row) bool {
				price, ok := table.Float64(r.Get("price"))
				return ok && price > 0
			}),
		validate.NewEngine(orders, "staging.orders").
			CheckUnique("order_id").
			CheckReferentialIntegrity("customer_id", customers, "customer_id").
			CheckValueRange("total_amount", validate.Float(0), nil).
			CheckLogical("no_future_orders", "order date is not in the future", func(r table.Row) bool {
				return table.String(r.Get("order_date")) <= today
			}),
		validate.NewEngine(items, "staging.order_items").
			CheckUnique("order_item_id").
			CheckReferentialIntegrity("order_id", orders, "order_id").
			CheckReferentialIntegrity("product_id", products, "product_id").
			CheckValueRange("discount_percent", validate.Float(0), validate.Float(100)),
	}

	for _, eng := range engines {
		sum := eng.Summarize()
		for _, res := range eng.Results() {
			a.record(ctx, rep, sum.Dataset+": "+res.Rule, res.Passed, res.Message)
		}
	}
}

// CheckBusinessRules verifies cross-tier consistency.
func (a *Auditor) CheckBusinessRules(ctx context.Context, rep *Report) {
	ordersRef := a.store.Qualify(warehouse.TierStaging, "orders")
	itemsRef := a.store.Qualify(warehouse.TierStaging, "order_items")
	salesRef := a.store.Qualify(warehouse.TierProd, "daily_sales")

	// prod revenue is recomputed from items; conservation ties it back
	// day by day so per-day rounding never accumulates into a false alarm
	revQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM (
			SELECT s.order_date
			FROM (SELECT o.order_date AS order_date,
			             SUM(oi.quantity * oi.unit_price * (1 - oi.discount_percent / 100.0)) AS revenue
			      FROM %[1]s o JOIN %[2]s oi ON o.order_id = oi.order_id
			      WHERE o.order_status = 'completed'
			      GROUP BY o.order_date) s
			LEFT JOIN %[3]s p ON p.order_date = s.order_date
			WHERE ABS(s.revenue - COALESCE(p.total_revenue, 0)) > 0.01
			UNION ALL
			SELECT p.order_date
			FROM %[3]s p
			LEFT JOIN (SELECT DISTINCT order_date FROM %[1]s WHERE order_status = 'completed') s2
				ON s2.order_date = p.order_date
			WHERE s2.order_date IS NULL AND p.total_revenue > 0.01
		) d`, ordersRef, itemsRef, salesRef)
	if n, err := a.scalarInt(ctx, revQuery); err != nil {
		a.record(ctx, rep, "revenue conserved staging to prod", false, err.Error())
	} else {
		a.record(ctx, rep, "revenue conserved staging to prod", n == 0,
			fmt.Sprintf("found %d days out of balance", n))
	}

	mismatchQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM (
			SELECT o.order_id
			FROM %s o
			LEFT JOIN %s oi ON o.order_id = oi.order_id
			GROUP BY o.order_id, o.total_amount
			HAVING ABS(o.total_amount - COALESCE(SUM(oi.quantity * oi.unit_price * (1 - oi.discount_percent / 100.0)), 0)) > 0.01
		) m`, ordersRef, itemsRef)
	if n, err := a.scalarInt(ctx, mismatchQuery); err != nil {
		a.record(ctx, rep, "order totals match item sums", false, err.Error())
	} else {
		a.record(ctx, rep, "order totals match item sums", n == 0,
			fmt.Sprintf("found %d mismatches", n))
	}

	segmentQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE customer_segment NOT IN (%s)",
		a.store.Qualify(warehouse.TierStaging, "customers"),
		quoteList(enums.CustomerSegmentValues()))
	if n, err := a.scalarInt(ctx, segmentQuery); err != nil {
		a.record(ctx, rep, "customer segments in domain", false, err.Error())
	} else {
		a.record(ctx, rep, "customer segments in domain", n == 0,
			fmt.Sprintf("found %d invalid segments", n))
	}

	statusQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE order_status NOT IN (%s)",
		ordersRef, quoteList(enums.OrderStatusValues()))
	if n, err := a.scalarInt(ctx, statusQuery); err != nil {
		a.record(ctx, rep, "order statuses in domain", false, err.Error())
	} else {
		a.record(ctx, rep, "order statuses in domain", n == 0,
			fmt.Sprintf("found %d invalid statuses", n))
	}
}

// CheckMetadata verifies the raw tier carries ingestion metadata.
func (a *Auditor) CheckMetadata(ctx context.Context, rep *Report) {
	query := fmt.Sprintf(
		"SELECT COUNT(DISTINCT %s) FROM %s",
		ingest.ColPartitionDate, a.store.Qualify(warehouse.TierRaw, "customers"))
	n, err := a.scalarInt(ctx, query)
	if err != nil {
		a.record(ctx, rep, "raw tier has partition metadata", false, err.Error())
		return
	}
	a.record(ctx, rep, "raw tier has partition metadata", n > 0,
		fmt.Sprintf("found %d partitions", n))
}

// Run executes every section and returns the report. The error is
// non-nil when at least one check failed.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	rep := &Report{StartedAt: a.now()}

	a.CheckTables(ctx, rep)
	a.CheckDataFlow(ctx, rep)
	a.CheckStagingQuality(ctx, rep)
	a.CheckBusinessRules(ctx, rep)
	a.CheckMetadata(ctx, rep)

	sctx := a.logg.WithFields(ctx, map[string]any{
		"checks": len(rep.Checks),
		"failed": len(rep.Failed()),
	})
	if !rep.Passed() {
		a.logg.Warn(sctx, "audit finished with failures")
		return rep, errors.New(errors.CodeValidation,
			fmt.Sprintf("audit failed: %d of %d checks", len(rep.Failed()), len(rep.Checks)))
	}
	a.logg.Info(sctx, "audit passed")
	return rep, nil
}

func (a *Auditor) readStaging(ctx context.Context, rep *Report, name string, cols []string) *table.Table {
	tbl, err := a.store.ReadTable(ctx, warehouse.TierStaging, name, cols)
	if err != nil {
		a.record(ctx, rep, "read staging "+name, false, err.Error())
		return nil
	}
	return tbl
}

func (a *Auditor) scalarInt(ctx context.Context, query string) (int64, error) {
	tbl, err := a.store.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	if tbl.Len() == 0 {
		return 0, nil
	}
	n, _ := table.Int64(tbl.Row(0)[0])
	return n, nil
}

func errDetails(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

func quoteList[T ~string](vals []T) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = "'" + string(v) + "'"
	}
	return strings.Join(quoted, ", ")
}
