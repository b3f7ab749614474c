// Package generate produces the deterministic daily snapshots that feed
// the raw tier. Two independent RNG streams drive it: the structural
// stream shapes the clean data, a defect stream injects the quality
// noise the downstream cleaning stages exist to handle. Splitting them
// keeps the base dataset stable when defect rates are retuned.
package generate

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shoplake/etl/internal/entity"
	"github.com/shoplake/etl/pkg/enums"
	"github.com/shoplake/etl/internal/snapshot"
	"github.com/shoplake/etl/pkg/config"
	"github.com/shoplake/etl/pkg/errors"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/table"
)

const dayFormat = "2006-01-02"

var discountChoices = []int64{0, 5, 10, 15, 20}

var customerSegments = enums.CustomerSegmentValues()

var statusWeights = []struct {
	status enums.OrderStatus
	weight float64
}{
	{enums.OrderStatusCompleted, 0.70},
	{enums.OrderStatusPending, 0.15},
	{enums.OrderStatusCancelled, 0.10},
	{enums.OrderStatusReturned, 0.05},
}

// Generator builds the yearly snapshot set for all four entities.
type Generator struct {
	cfg  config.GeneratorConfig
	logg *logger.Logger

	rng     *rand.Rand
	defects *rand.Rand

	products      *table.Table
	productPrices map[int64]float64
	productIDs    []int64

	emails         map[string]struct{}
	customerIDs    []int64
	nextCustomerID int64
	nextOrderID    int64
}

// Summary reports what a full run produced.
type Summary struct {
	Days      int
	Customers int
	Products  int
	Orders    int
	Items     int
}

// New seeds both RNG streams and builds the product master. The defect
// stream is offset by one so the two never overlap.
func New(cfg config.GeneratorConfig, logg *logger.Logger) *Generator {
	g := &Generator{
		cfg:            cfg,
		logg:           logg,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
		defects:        rand.New(rand.NewSource(cfg.Seed + 1)),
		emails:         make(map[string]struct{}),
		nextCustomerID: 1,
		nextOrderID:    1,
	}
	g.generateProducts()
	return g
}

// Products exposes the master catalog, shared by every partition day.
func (g *Generator) Products() *table.Table {
	return g.products
}

func (g *Generator) generateProducts() {
	tbl := table.New(entity.Products.ColumnNames()...)
	g.productPrices = make(map[int64]float64, g.cfg.ProductCount)
	g.productIDs = make([]int64, 0, g.cfg.ProductCount)

	for id := int64(1); id <= int64(g.cfg.ProductCount); id++ {
		cost := round2(10 + g.rng.Float64()*490)
		price := round2(cost * (1.3 + g.rng.Float64()*1.2))
		name := catchPhrase(g.rng)
		if g.defects.Float64() < g.cfg.LowercaseNameRate {
			name = strings.ToLower(name)
		}
		_ = tbl.Append([]any{id, name, pick(g.rng, productCategories), price, cost})
		g.productPrices[id] = price
		g.productIDs = append(g.productIDs, id)
	}
	g.products = tbl
}

// customersForDay generates the day's signups: a base batch plus a
// small batch of duplicate people (same name and country, fresh id and
// email) that the staging dedupe must NOT collapse.
func (g *Generator) customersForDay(day string) (*table.Table, error) {
	n := g.cfg.CustomersPerDayMin + g.rng.Intn(g.cfg.CustomersPerDayMax-g.cfg.CustomersPerDayMin+1)

	type person struct {
		id      int64
		name    any
		email   string
		country any
		segment string
	}
	people := make([]person, 0, n)
	idsUsed := make(map[int64]struct{}, n)

	for i := 0; i < n; i++ {
		id := g.nextCustomerID + int64(i)
		idsUsed[id] = struct{}{}

		email := g.uniqueEmail(id, strings.ReplaceAll(day, "-", ""))

		var name any
		if g.defects.Float64() < g.cfg.NullNameRate {
			name = nil
		} else {
			name = personName(g.rng)
		}

		p := person{
			id:      id,
			name:    name,
			email:   email,
			country: pick(g.rng, countries),
			segment: string(customerSegments[g.rng.Intn(len(customerSegments))]),
		}
		g.applyCustomerDefects(&p.name, &p.country, &p.email)
		people = append(people, p)
	}

	// duplicate people
	dupes := int(float64(len(people)) * g.cfg.DuplicatePersonRate)
	nextID := g.nextCustomerID + int64(len(people))
	for i := 0; i < dupes; i++ {
		original := people[g.rng.Intn(len(people))]
		if original.name == nil {
			continue
		}
		id := nextID + int64(i)
		for {
			if _, taken := idsUsed[id]; !taken {
				break
			}
			id++
		}
		idsUsed[id] = struct{}{}

		p := person{
			id:      id,
			name:    original.name,
			email:   g.uniqueEmail(id, rand4(g.rng)),
			country: original.country,
			segment: original.segment,
		}
		g.applyCustomerDefects(&p.name, &p.country, &p.email)
		people = append(people, p)
	}

	tbl := table.New(entity.Customers.ColumnNames()...)
	seenEmails := make(map[string]struct{}, len(people))
	for _, p := range people {
		if p.email == "" {
			return nil, errors.New(errors.CodeInternal, "generated customer with empty email")
		}
		if _, dup := seenEmails[p.email]; dup {
			return nil, errors.New(errors.CodeInternal, "generated duplicate email "+p.email)
		}
		seenEmails[p.email] = struct{}{}
		_ = tbl.Append([]any{p.id, p.name, p.email, p.country, day, p.segment})
	}
	if len(seenEmails) != tbl.Len() {
		return nil, errors.New(errors.CodeInternal, "customer day batch failed uniqueness check")
	}
	return tbl, nil
}

// applyCustomerDefects mutates a person in place using the defect
// stream: lowercase names, dropped countries, mangled email formats.
// Mangled emails stay unique because the valid form was unique.
func (g *Generator) applyCustomerDefects(name *any, country *any, email *string) {
	if *name != nil && g.defects.Float64() < g.cfg.LowercaseNameRate {
		*name = strings.ToLower((*name).(string))
	}
	if g.defects.Float64() < g.cfg.NullCountryRate {
		*country = nil
	}
	if g.defects.Float64() < g.cfg.InvalidEmailRate {
		*email = strings.Replace(*email, "@", "_at_", 1)
	}
}

// uniqueEmail draws addresses until one misses the global set, with a
// deterministic fallback after too many collisions.
func (g *Generator) uniqueEmail(customerID int64, tag string) string {
	email := emailAddress(g.rng)
	for attempt := 0; attempt < 1000; attempt++ {
		if _, taken := g.emails[email]; !taken {
			break
		}
		email = emailAddress(g.rng)
	}
	if _, taken := g.emails[email]; taken {
		email = fallbackEmail(g.rng, customerID, tag)
	}
	g.emails[email] = struct{}{}
	return email
}

// ordersForDay generates orders with their line items. Four percent of
// each batch is re-appended verbatim, ids included, to give staging
// something to deduplicate.
func (g *Generator) ordersForDay(day string) (*table.Table, *table.Table) {
	orders := table.New(entity.Orders.ColumnNames()...)
	items := table.New(entity.OrderItems.ColumnNames()...)
	if len(g.customerIDs) == 0 {
		return orders, items
	}

	n := g.cfg.OrdersPerDayMin + g.rng.Intn(g.cfg.OrdersPerDayMax-g.cfg.OrdersPerDayMin+1)
	itemID := g.nextOrderID * 10

	type orderRow struct {
		id       int64
		customer int64
		status   string
		total    float64
	}
	type itemRow struct {
		id       int64
		order    int64
		product  int64
		quantity int64
		price    float64
		discount int64
	}
	orderRows := make([]orderRow, 0, n)
	itemRows := make([]itemRow, 0, n*3)

	for i := 0; i < n; i++ {
		orderID := g.nextOrderID + int64(i)
		customerID := g.customerIDs[g.rng.Intn(len(g.customerIDs))]
		status := g.weightedStatus()

		numItems := 1 + g.rng.Intn(g.cfg.ItemsPerOrderMax)
		total := decimal.Zero
		for j := 0; j < numItems; j++ {
			productID := g.productIDs[g.rng.Intn(len(g.productIDs))]
			quantity := int64(1 + g.rng.Intn(5))
			unitPrice := g.productPrices[productID]
			discount := discountChoices[g.rng.Intn(len(discountChoices))]

			lineTotal := decimal.NewFromFloat(unitPrice).
				Mul(decimal.NewFromInt(quantity)).
				Mul(decimal.NewFromInt(100 - discount)).
				Div(decimal.NewFromInt(100))
			total = total.Add(lineTotal)

			itemRows = append(itemRows, itemRow{
				id: itemID, order: orderID, product: productID,
				quantity: quantity, price: unitPrice, discount: discount,
			})
			itemID++
		}

		orderRows = append(orderRows, orderRow{
			id: orderID, customer: customerID, status: status,
			total: total.Round(2).InexactFloat64(),
		})
	}

	// verbatim duplicate injection
	for i, k := 0, int(float64(len(orderRows))*g.cfg.DuplicateRowRate); i < k; i++ {
		orderRows = append(orderRows, orderRows[g.rng.Intn(len(orderRows))])
	}
	for i, k := 0, int(float64(len(itemRows))*g.cfg.DuplicateRowRate); i < k; i++ {
		itemRows = append(itemRows, itemRows[g.rng.Intn(len(itemRows))])
	}

	for _, o := range orderRows {
		_ = orders.Append([]any{o.id, o.customer, day, o.status, o.total})
	}
	for _, it := range itemRows {
		_ = items.Append([]any{it.id, it.order, it.product, it.quantity, it.price, it.discount})
	}
	return orders, items
}

func (g *Generator) weightedStatus() string {
	r := g.rng.Float64()
	cum := 0.0
	for _, sw := range statusWeights {
		cum += sw.weight
		if r < cum {
			return sw.status.String()
		}
	}
	return statusWeights[len(statusWeights)-1].status.String()
}

// Run writes snapshots for every configured day. Orders begin on the
// second day so there is always a customer population to draw from.
func (g *Generator) Run(ctx context.Context, root string) (Summary, error) {
	start, err := time.Parse(dayFormat, g.cfg.StartDate)
	if err != nil {
		return Summary{}, errors.Wrap(errors.CodeInternal, err, "parse generator start date")
	}

	var sum Summary
	sum.Products = g.products.Len()

	for d := 0; d < g.cfg.Days; d++ {
		if err := ctx.Err(); err != nil {
			return sum, errors.Wrap(errors.CodeInternal, err, "generation cancelled")
		}
		day := start.AddDate(0, 0, d).Format(dayFormat)
		pctx := g.logg.WithPartition(ctx, day)

		customers, err := g.customersForDay(day)
		if err != nil {
			return sum, err
		}
		if customers.Len() > 0 {
			if err := snapshot.Write(root, entity.Customers, day, customers); err != nil {
				return sum, errors.Wrap(errors.CodeInternal, err, "write customers snapshot")
			}
			for _, v := range customers.Column("customer_id") {
				if id, ok := table.Int64(v); ok {
					g.customerIDs = append(g.customerIDs, id)
				}
			}
			g.nextCustomerID += int64(customers.Len())
			sum.Customers += customers.Len()
		}

		if err := snapshot.Write(root, entity.Products, day, g.products); err != nil {
			return sum, errors.Wrap(errors.CodeInternal, err, "write products snapshot")
		}

		if d >= 1 {
			orders, items := g.ordersForDay(day)
			if orders.Len() > 0 {
				if err := snapshot.Write(root, entity.Orders, day, orders); err != nil {
					return sum, errors.Wrap(errors.CodeInternal, err, "write orders snapshot")
				}
				if err := snapshot.Write(root, entity.OrderItems, day, items); err != nil {
					return sum, errors.Wrap(errors.CodeInternal, err, "write order items snapshot")
				}
				// duplicates do not advance the id sequence
				uniqueOrders := countUnique(orders.Column("order_id"))
				g.nextOrderID += int64(uniqueOrders)
				sum.Orders += orders.Len()
				sum.Items += items.Len()
			}
		}

		g.logg.Debug(pctx, "generated partition")
		sum.Days++
	}

	g.logg.Info(ctx, "generation complete")
	return sum, nil
}

func countUnique(vals []any) int {
	seen := make(map[any]struct{}, len(vals))
	for _, v := range vals {
		seen[table.Key(v)] = struct{}{}
	}
	return len(seen)
}

func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

func rand4(rng *rand.Rand) string {
	digits := []byte("0123456789")
	out := make([]byte, 4)
	for i := range out {
		out[i] = digits[rng.Intn(10)]
	}
	return string(out)
}
