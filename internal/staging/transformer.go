// Package staging rebuilds the staging tier from raw. Each table is a
// truncate-and-reload: dedupe on the primary key, normalize text, drop
// rows that fail validation, and enforce referential integrity against
// the staging parents written earlier in the same run.
package staging

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shoplake/etl/internal/entity"
	"github.com/shoplake/etl/internal/warehouse"
	"github.com/shoplake/etl/pkg/enums"
	"github.com/shoplake/etl/pkg/errors"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/table"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Transformer moves raw rows into the staging tier.
type Transformer struct {
	store *warehouse.Store
	logg  *logger.Logger
	now   func() time.Time
}

// Outcome reports what one table transformation did.
type Outcome struct {
	Table             string
	RowsRead          int
	RowsWritten       int64
	DuplicatesRemoved int
	DroppedInvalid    int
	DroppedNulls      int
	DroppedOrphans    int
}

func New(store *warehouse.Store, logg *logger.Logger) *Transformer {
	return &Transformer{store: store, logg: logg, now: time.Now}
}

// stamp appends the created_at/updated_at audit columns. Both carry the
// same load timestamp; staging is truncate-and-reload so rows never age.
func (t *Transformer) stamp(tbl *table.Table) *table.Table {
	ts := t.now().UTC().Format(time.RFC3339)
	tbl = tbl.WithColumn("created_at", func(table.Row) any { return ts })
	return tbl.WithColumn("updated_at", func(table.Row) any { return ts })
}

// capitalizeWords uppercases the first letter of each word and lowers
// the rest, leaving nulls untouched.
func capitalizeWords(v any) any {
	if v == nil {
		return nil
	}
	words := strings.Fields(table.String(v))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func validEmail(v any) bool {
	if v == nil {
		return false
	}
	return emailRe.MatchString(table.String(v))
}

// TransformCustomers rebuilds staging customers from raw.
func (t *Transformer) TransformCustomers(ctx context.Context) (Outcome, error) {
	out := Outcome{Table: "customers"}

	raw, err := t.store.ReadTable(ctx, warehouse.TierRaw, "customers", entity.Customers.ColumnNames())
	if err != nil {
		return out, errors.Wrap(errors.CodeConnection, err, "read raw customers")
	}
	out.RowsRead = raw.Len()
	if raw.Len() == 0 {
		t.logg.Warn(t.logg.WithTable(ctx, "customers"), "no rows in raw tier")
		return out, nil
	}

	tbl, dups := raw.DropDuplicates("customer_id")
	out.DuplicatesRemoved = dups

	tbl = tbl.MapColumn("customer_name", capitalizeWords)

	tbl, invalid := tbl.Filter(func(r table.Row) bool { return validEmail(r.Get("email")) })
	out.DroppedInvalid = invalid

	tbl, nulls := tbl.DropNulls("customer_id", "customer_name", "email", "signup_date")
	out.DroppedNulls = nulls

	tbl = tbl.Fill("country", "Unknown")
	tbl = tbl.Fill("customer_segment", enums.SegmentStandard.String())

	written, err := t.store.WriteTable(ctx, warehouse.TierStaging, "customers", t.stamp(tbl), true)
	if err != nil {
		return out, errors.Wrap(errors.CodeConnection, err, "write staging customers")
	}
	out.RowsWritten = written
	t.logOutcome(ctx, out)
	return out, nil
}

// TransformProducts rebuilds staging products from raw. Products repeat
// in every daily partition, so nearly all rows are dedupe fodder.
func (t *Transformer) TransformProducts(ctx context.Context) (Outcome, error) {
	out := Outcome{Table: "products"}

	raw, err := t.store.ReadTable(ctx, warehouse.TierRaw, "products", entity.Products.ColumnNames())
	if err != nil {
		return out, errors.Wrap(errors.CodeConnection, err, "read raw products")
	}
	out.RowsRead = raw.Len()
	if raw.Len() == 0 {
		t.logg.Warn(t.logg.WithTable(ctx, "products"), "no rows in raw tier")
		return out, nil
	}

	tbl, dups := raw.DropDuplicates("product_id")
	out.DuplicatesRemoved = dups

	tbl = tbl.MapColumn("product_name", capitalizeWords)

	tbl, invalid := tbl.Filter(func(r table.Row) bool {
		price, okP := table.Float64(r.Get("price"))
		cost, okC := table.Float64(r.Get("cost"))
		return okP && okC && price >= 0 && cost >= 0
	})
	out.DroppedInvalid = invalid

	tbl, nulls := tbl.DropNulls(entity.Products.ColumnNames()...)
	out.DroppedNulls = nulls

	written, err := t.store.WriteTable(ctx, warehouse.TierStaging, "products", t.stamp(tbl), true)
	if err != nil {
		return out, errors.Wrap(errors.CodeConnection, err, "write staging products")
	}
	out.RowsWritten = written
	t.logOutcome(ctx, out)
	return out, nil
}

// TransformOrders rebuilds staging orders, keeping only orders whose
// customer survived the customer transformation.
func (t *Transformer) TransformOrders(ctx context.Context) (Outcome, error) {
	out := Outcome{Table: "orders"}

	validCustomers, err := t.stagingKeySet(ctx, "customers", "customer_id")
	if err != nil {
		return out, err
	}

	raw, err := t.store.ReadTable(ctx, warehouse.TierRaw, "orders", entity.Orders.ColumnNames())
	if err != nil {
		return out, errors.Wrap(errors.CodeConnection, err, "read raw orders")
	}
	out.RowsRead = raw.Len()
	if raw.Len() == 0 {
		t.logg.Warn(t.logg.WithTable(ctx, "orders"), "no rows in raw tier")
		return out, nil
	}

	tbl, dups := raw.DropDuplicates("order_id")
	out.DuplicatesRemoved = dups

	tbl, orphans := tbl.Filter(func(r table.Row) bool {
		_, ok := validCustomers[table.Key(r.Get("customer_id"))]
		return ok
	})
	out.DroppedOrphans = orphans

	tbl, invalid := tbl.Filter(func(r table.Row) bool {
		if !enums.OrderStatus(table.String(r.Get("order_status"))).IsValid() {
			return false
		}
		amount, ok := table.Float64(r.Get("total_amount"))
		return ok && amount >= 0
	})
	out.DroppedInvalid = invalid

	tbl, nulls := tbl.DropNulls(entity.Orders.ColumnNames()...)
	out.DroppedNulls = nulls

	written, err := t.store.WriteTable(ctx, warehouse.TierStaging, "orders", t.stamp(tbl), true)
	if err != nil {
		return out, errors.Wrap(errors.CodeConnection, err, "write staging orders")
	}
	out.RowsWritten = written
	t.logOutcome(ctx, out)
	return out, nil
}

// TransformOrderItems rebuilds staging order items against the staging
// orders and products written earlier in the run.
func (t *Transformer) TransformOrderItems(ctx context.Context) (Outcome, error) {
	out := Outcome{Table: "order_items"}

	validOrders, err := t.stagingKeySet(ctx, "orders", "order_id")
	if err != nil {
		return out, err
	}
	validProducts, err := t.stagingKeySet(ctx, "products", "product_id")
	if err != nil {
		return out, err
	}

	raw, err := t.store.ReadTable(ctx, warehouse.TierRaw, "order_items", entity.OrderItems.ColumnNames())
	if err != nil {
		return out, errors.Wrap(errors.CodeConnection, err, "read raw order_items")
	}
	out.RowsRead = raw.Len()
	if raw.Len() == 0 {
		t.logg.Warn(t.logg.WithTable(ctx, "order_items"), "no rows in raw tier")
		return out, nil
	}

	tbl, dups := raw.DropDuplicates("order_item_id")
	out.DuplicatesRemoved = dups

	tbl, orphans := tbl.Filter(func(r table.Row) bool {
		if _, ok := validOrders[table.Key(r.Get("order_id"))]; !ok {
			return false
		}
		_, ok := validProducts[table.Key(r.Get("product_id"))]
		return ok
	})
	out.DroppedOrphans = orphans

	tbl = tbl.Fill("discount_percent", int64(0))
	tbl, invalid := tbl.Filter(func(r table.Row) bool {
		qty, okQ := table.Int64(r.Get("quantity"))
		price, okP := table.Float64(r.Get("unit_price"))
		disc, okD := table.Int64(r.Get("discount_percent"))
		return okQ && okP && okD && qty > 0 && price >= 0 && disc >= 0 && disc <= 100
	})
	out.DroppedInvalid = invalid

	tbl, nulls := tbl.DropNulls("order_item_id", "order_id", "product_id", "quantity", "unit_price")
	out.DroppedNulls = nulls

	written, err := t.store.WriteTable(ctx, warehouse.TierStaging, "order_items", t.stamp(tbl), true)
	if err != nil {
		return out, errors.Wrap(errors.CodeConnection, err, "write staging order_items")
	}
	out.RowsWritten = written
	t.logOutcome(ctx, out)
	return out, nil
}

// TransformAll runs every table in dependency order so referential
// checks always see fresh parents.
func (t *Transformer) TransformAll(ctx context.Context) (map[string]Outcome, error) {
	results := make(map[string]Outcome, 4)
	steps := []func(context.Context) (Outcome, error){
		t.TransformCustomers,
		t.TransformProducts,
		t.TransformOrders,
		t.TransformOrderItems,
	}
	for _, step := range steps {
		out, err := step(ctx)
		results[out.Table] = out
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (t *Transformer) stagingKeySet(ctx context.Context, name, col string) (map[any]struct{}, error) {
	tbl, err := t.store.ReadTable(ctx, warehouse.TierStaging, name, []string{col})
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "read staging "+name)
	}
	out := make(map[any]struct{}, tbl.Len())
	for _, v := range tbl.Column(col) {
		out[table.Key(v)] = struct{}{}
	}
	return out, nil
}

func (t *Transformer) logOutcome(ctx context.Context, out Outcome) {
	fields := map[string]any{
		"table":        out.Table,
		"rows_read":    out.RowsRead,
		"rows_written": out.RowsWritten,
		"dups":         out.DuplicatesRemoved,
		"invalid":      out.DroppedInvalid,
		"nulls":        out.DroppedNulls,
		"orphans":      out.DroppedOrphans,
	}
	t.logg.Info(t.logg.WithFields(ctx, fields), "staging table rebuilt")
}
