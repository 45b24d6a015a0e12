package assets

// callbackSlot collects completion callbacks that fire once. Invoke empties
// the slot before running them, so a callback that triggers another
// completion never sees itself again.
type callbackSlot[T any] struct {
	fns []func(T)
}

func (s *callbackSlot[T]) add(fn func(T)) {
	if fn != nil {
		s.fns = append(s.fns, fn)
	}
}

func (s *callbackSlot[T]) take() []func(T) {
	fns := s.fns
	s.fns = nil
	return fns
}

func (s *callbackSlot[T]) clear() {
	s.fns = nil
}

func (s *callbackSlot[T]) invoke(v T) {
	for _, fn := range s.take() {
		fn(v)
	}
}
