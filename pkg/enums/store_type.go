package enums

import "fmt"

// StoreType selects which storefront an item belongs to. It also picks the
// M-Pesa channel: liquor orders settle against the paybill, food orders
// against the till.
type StoreType string

const (
	StoreTypeFood   StoreType = "food"
	StoreTypeLiquor StoreType = "liquor"
)

var validStoreTypes = []StoreType{
	StoreTypeFood,
	StoreTypeLiquor,
}

// String implements fmt.Stringer.
func (s StoreType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StoreType.
func (s StoreType) IsValid() bool {
	for _, candidate := range validStoreTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStoreType converts raw input into a StoreType.
func ParseStoreType(value string) (StoreType, error) {
	for _, candidate := range validStoreTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid store type %q", value)
}
