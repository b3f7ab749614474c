package enums

import "fmt"

// CustomerSegment is the marketing tier assigned to a customer.
type CustomerSegment string

const (
	SegmentPremium  CustomerSegment = "Premium"
	SegmentStandard CustomerSegment = "Standard"
	SegmentBasic    CustomerSegment = "Basic"
)

// CustomerSegmentValues lists every valid segment in declaration order.
func CustomerSegmentValues() []CustomerSegment {
	return []CustomerSegment{SegmentPremium, SegmentStandard, SegmentBasic}
}

func (s CustomerSegment) IsValid() bool {
	switch s {
	case SegmentPremium, SegmentStandard, SegmentBasic:
		return true
	}
	return false
}

func (s CustomerSegment) String() string {
	return string(s)
}

// ParseCustomerSegment converts a raw string into a CustomerSegment.
func ParseCustomerSegment(v string) (CustomerSegment, error) {
	s := CustomerSegment(v)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid customer segment %q", v)
	}
	return s, nil
}
