package shard

import (
	"errors"
	"fmt"
)

// Item is one entry of the collection.
type Item struct {
	Label  string    // Display label, e.g. a movie title
	Vector []float64 // Feature vector
	ID     int       // Stable identifier
}

// Collection is an ordered, fixed-size sequence of items with label and id
// indexes. It is immutable once built.
type Collection struct {
	byLabel map[string]int // label -> position, first occurrence wins
	byID    map[int]int    // id -> position
	items   []Item
	dim     int
}

// NewCollection validates items and builds the indexes. Every vector must
// have the same length and ids must be unique.
func NewCollection(items []Item) (*Collection, error) {
	if len(items) == 0 {
		return nil, errors.New("collection is empty")
	}

	c := &Collection{
		items:   items,
		byLabel: make(map[string]int, len(items)),
		byID:    make(map[int]int, len(items)),
		dim:     len(items[0].Vector),
	}
	for i, it := range items {
		if len(it.Vector) != c.dim {
			return nil, fmt.Errorf("item %d: vector has %d dimensions, want %d", it.ID, len(it.Vector), c.dim)
		}
		if _, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("item %d: duplicate id", it.ID)
		}
		c.byID[it.ID] = i
		if _, seen := c.byLabel[it.Label]; !seen {
			c.byLabel[it.Label] = i
		}
	}
	return c, nil
}

// Len returns the number of items.
func (c *Collection) Len() int { return len(c.items) }

// Dim returns the vector dimensionality.
func (c *Collection) Dim() int { return c.dim }

// At returns the item at position i.
func (c *Collection) At(i int) Item { return c.items[i] }

// Lookup resolves a label to its item.
func (c *Collection) Lookup(label string) (Item, bool) {
	i, ok := c.byLabel[label]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

// Label resolves an id to its label.
func (c *Collection) Label(id int) (string, bool) {
	i, ok := c.byID[id]
	if !ok {
		return "", false
	}
	return c.items[i].Label, true
}
