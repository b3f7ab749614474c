package enums

import "fmt"

// OrderStatus is the lifecycle state recorded on an order row.
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusReturned  OrderStatus = "returned"
)

// OrderStatusValues lists every valid status in declaration order.
func OrderStatusValues() []OrderStatus {
	return []OrderStatus{
		OrderStatusCompleted,
		OrderStatusPending,
		OrderStatusCancelled,
		OrderStatusReturned,
	}
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusPending, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// ParseOrderStatus converts a raw string into an OrderStatus.
func ParseOrderStatus(v string) (OrderStatus, error) {
	s := OrderStatus(v)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid order status %q", v)
	}
	return s, nil
}
