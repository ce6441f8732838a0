package pagination

import (
	"cmp"
	"slices"
)

// Page is one window of a sorted result set.
type Page[T any] struct {
	Items         []T
	Total         int
	NextPageToken string
}

// Comparator orders two items on one field.
type Comparator[T any] func(a, b T) int

// By compares items on the key extracted by key.
func By[T any, K cmp.Ordered](key func(T) K) Comparator[T] {
	return func(a, b T) int { return cmp.Compare(key(a), key(b)) }
}

// Apply sorts items in place by p.Orders and returns the requested window. Fields without a
// comparator do not affect the order.
func Apply[T any](items []T, p Params, comparators map[string]Comparator[T]) Page[T] {
	if len(p.Orders) > 0 {
		slices.SortStableFunc(items, func(a, b T) int {
			for _, o := range p.Orders {
				compare := comparators[o.Field]
				if compare == nil {
					continue
				}
				if c := compare(a, b); c != 0 {
					if o.Desc {
						return -c
					}
					return c
				}
			}
			return 0
		})
	}

	size := cmp.Or(max(p.PageSize, 0), DefaultPageSize)
	from := min(p.Offset, len(items))
	to := min(from+size, len(items))
	page := Page[T]{Items: items[from:to], Total: len(items)}
	if to < len(items) {
		page.NextPageToken = issueToken(to, p.Orders)
	}
	return page
}
