// Package rotation decides which catalog item is due for posting. Selection
// is a pure function of the rotation stats, so repeated calls over the same
// snapshot always pick the same item. An item is only consumed when a publish
// succeeds and the pipeline advances its stats.
package rotation

import (
	"fmt"
	"sort"

	"vitrine/internal/catalog"
	"vitrine/internal/services"
)

// Next picks the item due for posting from a snapshot of active items.
// Ordering, first criterion wins:
//
//  1. never-posted items before items posted at least once
//  2. ascending post count
//  3. ascending last posted time, oldest first
//  4. ascending item key
//
// Returns services.ErrNotFound when no active item is available.
func Next(items []*catalog.Item) (*catalog.Item, error) {
	var best *catalog.Item
	for _, item := range items {
		if item == nil || !item.Active {
			continue
		}
		if best == nil || less(item, best) {
			best = item
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no active catalog items", services.ErrNotFound)
	}
	return best, nil
}

// Order returns the items sorted into posting order without mutating the
// input slice.
func Order(items []*catalog.Item) []*catalog.Item {
	ordered := make([]*catalog.Item, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return less(ordered[i], ordered[j])
	})
	return ordered
}

func less(a, b *catalog.Item) bool {
	aNever := a.LastPostedAt == nil
	bNever := b.LastPostedAt == nil
	if aNever != bNever {
		return aNever
	}
	if a.PostCount != b.PostCount {
		return a.PostCount < b.PostCount
	}
	if !aNever && !a.LastPostedAt.Equal(*b.LastPostedAt) {
		return a.LastPostedAt.Before(*b.LastPostedAt)
	}
	return a.Key < b.Key
}
