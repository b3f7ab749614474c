// Package entity describes the four source entities the pipeline moves
// through the warehouse tiers: their columns, value kinds, keys, and the
// dependency order loads must follow.
package entity

// Kind is the logical value type of a column.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
)

// Column describes one field of a source entity.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// Entity describes one partitioned source dataset.
type Entity struct {
	Name    string
	Key     string
	Columns []Column
}

// ColumnNames returns the column names in declaration order.
func (e Entity) ColumnNames() []string {
	out := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by name.
func (e Entity) Column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

var (
	Customers = Entity{
		Name: "customers",
		Key:  "customer_id",
		Columns: []Column{
			{Name: "customer_id", Kind: KindInt},
			{Name: "customer_name", Kind: KindString, Nullable: true},
			{Name: "email", Kind: KindString},
			{Name: "country", Kind: KindString, Nullable: true},
			{Name: "signup_date", Kind: KindString},
			{Name: "customer_segment", Kind: KindString, Nullable: true},
		},
	}

	Products = Entity{
		Name: "products",
		Key:  "product_id",
		Columns: []Column{
			{Name: "product_id", Kind: KindInt},
			{Name: "product_name", Kind: KindString},
			{Name: "category", Kind: KindString},
			{Name: "price", Kind: KindFloat},
			{Name: "cost", Kind: KindFloat},
		},
	}

	Orders = Entity{
		Name: "orders",
		Key:  "order_id",
		Columns: []Column{
			{Name: "order_id", Kind: KindInt},
			{Name: "customer_id", Kind: KindInt},
			{Name: "order_date", Kind: KindString},
			{Name: "order_status", Kind: KindString},
			{Name: "total_amount", Kind: KindFloat},
		},
	}

	OrderItems = Entity{
		Name: "order_items",
		Key:  "order_item_id",
		Columns: []Column{
			{Name: "order_item_id", Kind: KindInt},
			{Name: "order_id", Kind: KindInt},
			{Name: "product_id", Kind: KindInt},
			{Name: "quantity", Kind: KindInt},
			{Name: "unit_price", Kind: KindFloat},
			{Name: "discount_percent", Kind: KindInt},
		},
	}
)

// All returns the entities in dependency order: parents before children.
func All() []Entity {
	return []Entity{Customers, Products, Orders, OrderItems}
}

// ByName looks up an entity by its table name.
func ByName(name string) (Entity, bool) {
	for _, e := range All() {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}
