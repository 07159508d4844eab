package checkout

import "encoding/json"

// SnapshotItem is a frozen line item: product data copied at session-build
// time and immune to later catalog changes. The serialized snapshot rides in
// the provider session metadata and comes back on the confirmation event.
type SnapshotItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Image     string `json:"image,omitempty"`
	Price     int64  `json:"price"` // minor units, frozen
	Quantity  int    `json:"quantity"`
}

func EncodeSnapshot(items []SnapshotItem) (string, error) {
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeSnapshot(s string) ([]SnapshotItem, error) {
	var items []SnapshotItem
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Subtotal sums price x quantity over the snapshot.
func Subtotal(items []SnapshotItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Price * int64(it.Quantity)
	}
	return total
}
