package sym

// seq is a small ordered sequence container: append, indexed access,
// traversal, membership test and delete-by-identity. The library uses it
// for a Context's CU list (cuRegistry); a DIE's children are a plain slice.
type seq[T comparable] struct {
	items []T
}

// newSeq creates an empty sequence, optionally reserving capacity.
func newSeq[T comparable](capacity int) *seq[T] {
	return &seq[T]{items: make([]T, 0, capacity)}
}

// append adds an item to the end of the sequence.
func (s *seq[T]) append(item T) {
	s.items = append(s.items, item)
}

// len returns the number of items in the sequence.
func (s *seq[T]) len() int {
	return len(s.items)
}

// at returns the item at index i. It panics if i is out of range, matching
// slice indexing semantics.
func (s *seq[T]) at(i int) T {
	return s.items[i]
}

// all returns the sequence contents in traversal order. The returned slice
// aliases the sequence's backing array and must be treated as read-only.
func (s *seq[T]) all() []T {
	return s.items
}

// contains reports whether item is present in the sequence.
func (s *seq[T]) contains(item T) bool {
	for _, v := range s.items {
		if v == item {
			return true
		}
	}
	return false
}

// deleteIdentity removes the first occurrence of item from the sequence,
// preserving the order of the remaining items. It reports whether an item
// was removed.
func (s *seq[T]) deleteIdentity(item T) bool {
	for i, v := range s.items {
		if v == item {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}
