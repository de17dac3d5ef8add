package types

// Stack is a small slice backed LIFO used by the action loop bookkeeping
type Stack[T comparable] struct {
	items []T
}

// Push adds an item on top
func (s *Stack[T]) Push(item T) {
	s.items = append(s.items, item)
}

// Pop removes the top item
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	last := len(s.items) - 1
	item := s.items[last]
	s.items[last] = zero
	s.items = s.items[:last]
	return item, true
}

// Top returns the top item without removing it
func (s *Stack[T]) Top() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Remove removes the first occurrence of item, returns false if not found
func (s *Stack[T]) Remove(item T) bool {
	for i, candidate := range s.items {
		if candidate == item {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of items
func (s *Stack[T]) Len() int {
	return len(s.items)
}

// Items returns a copy of the items, bottom first
func (s *Stack[T]) Items() []T {
	return append([]T(nil), s.items...)
}
