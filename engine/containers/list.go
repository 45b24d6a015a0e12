package containers

// List is an insertion-ordered list that tolerates removal while it is being
// walked by index. It backs the driver's loading and unused lists.
type List[T comparable] struct {
	data []T
}

func NewList[T comparable]() *List[T] {
	return &List[T]{}
}

// Add appends value, duplicates included.
func (l *List[T]) Add(value T) {
	l.data = append(l.data, value)
}

// At returns the element at index i.
func (l *List[T]) At(i int) T {
	return l.data[i]
}

// RemoveAt removes the element at index i, preserving order.
func (l *List[T]) RemoveAt(i int) {
	var zero T
	copy(l.data[i:], l.data[i+1:])
	l.data[len(l.data)-1] = zero
	l.data = l.data[:len(l.data)-1]
}

// Remove deletes the first occurrence of value and reports whether it was found.
func (l *List[T]) Remove(value T) bool {
	i := l.IndexOf(value)
	if i < 0 {
		return false
	}
	l.RemoveAt(i)
	return true
}

func (l *List[T]) IndexOf(value T) int {
	for i, v := range l.data {
		if v == value {
			return i
		}
	}
	return -1
}

func (l *List[T]) Contains(value T) bool {
	return l.IndexOf(value) >= 0
}

func (l *List[T]) Len() int {
	return len(l.data)
}

// IsEmpty checks if the list is empty
func (l *List[T]) IsEmpty() bool {
	return len(l.data) == 0
}

func (l *List[T]) Clear() {
	clear(l.data)
	l.data = l.data[:0]
}

// Items returns a copy of the current elements.
func (l *List[T]) Items() []T {
	return append([]T(nil), l.data...)
}
