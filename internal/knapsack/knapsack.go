package knapsack

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyInstance = errors.New("knapsack instance has no items")
	// ErrTotalOverflow rejects instances whose summed weights or values do
	// not fit in an int64. Every selection sum is bounded by these totals.
	ErrTotalOverflow = errors.New("knapsack totals overflow int64")
)

// Item is a single selectable entry of a knapsack instance.
type Item struct {
	Weight int64 `json:"weight" yaml:"weight"`
	Value  int64 `json:"value" yaml:"value"`
}

// Knapsack is a read-only 0/1 knapsack instance. Item order defines the
// genome bit position of every item.
type Knapsack struct {
	name        string
	items       []Item
	capacity    int64
	totalWeight int64
	totalValue  int64
}

func New(name string, items []Item, capacity int64) (*Knapsack, error) {
	if len(items) == 0 {
		return nil, ErrEmptyInstance
	}
	if capacity < 0 {
		return nil, fmt.Errorf("capacity must be >= 0, got %d", capacity)
	}
	var totalWeight, totalValue int64
	for i, item := range items {
		if item.Weight < 0 {
			return nil, fmt.Errorf("item %d weight must be >= 0, got %d", i, item.Weight)
		}
		if item.Value < 0 {
			return nil, fmt.Errorf("item %d value must be >= 0, got %d", i, item.Value)
		}
		if item.Weight > math.MaxInt64-totalWeight {
			return nil, fmt.Errorf("%w: weight at item %d", ErrTotalOverflow, i)
		}
		if item.Value > math.MaxInt64-totalValue {
			return nil, fmt.Errorf("%w: value at item %d", ErrTotalOverflow, i)
		}
		totalWeight += item.Weight
		totalValue += item.Value
	}
	return &Knapsack{
		name:        name,
		items:       append([]Item(nil), items...),
		capacity:    capacity,
		totalWeight: totalWeight,
		totalValue:  totalValue,
	}, nil
}

func (k *Knapsack) Name() string {
	return k.name
}

// NumItems is also the required genome bit length.
func (k *Knapsack) NumItems() int {
	return len(k.items)
}

func (k *Knapsack) Item(i int) Item {
	return k.items[i]
}

func (k *Knapsack) Items() []Item {
	return append([]Item(nil), k.items...)
}

func (k *Knapsack) Capacity() int64 {
	return k.capacity
}

func (k *Knapsack) TotalWeight() int64 {
	return k.totalWeight
}

func (k *Knapsack) TotalValue() int64 {
	return k.totalValue
}

func (k *Knapsack) Clone() *Knapsack {
	return &Knapsack{
		name:        k.name,
		items:       append([]Item(nil), k.items...),
		capacity:    k.capacity,
		totalWeight: k.totalWeight,
		totalValue:  k.totalValue,
	}
}
