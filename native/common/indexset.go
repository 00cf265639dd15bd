package common

import "errors"

// ErrIndexNotFound is returned when removing an element that is not tracked.
var ErrIndexNotFound = errors.New("index set: element not found")

// IndexStore is an insertion-ordered list paired with a reverse lookup from
// element to its position in the list. Implementations may be in memory or
// backed by persistent state.
type IndexStore[K any] interface {
	Len() (uint64, error)
	At(pos uint64) (K, error)
	Set(pos uint64, k K) error
	Truncate(n uint64) error
	Position(k K) (uint64, bool, error)
	SetPosition(k K, pos uint64) error
	DeletePosition(k K) error
}

// Push appends k to the store and records its position. Elements already
// present are left where they are.
func Push[K any](s IndexStore[K], k K) error {
	if _, ok, err := s.Position(k); err != nil {
		return err
	} else if ok {
		return nil
	}
	n, err := s.Len()
	if err != nil {
		return err
	}
	if err := s.Set(n, k); err != nil {
		return err
	}
	return s.SetPosition(k, n)
}

// SwapRemove removes k in constant time by moving the last element into the
// vacated slot and shrinking the list. The reverse lookup of the moved element
// is updated to its new position.
func SwapRemove[K any](s IndexStore[K], k K) error {
	pos, ok, err := s.Position(k)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIndexNotFound
	}
	n, err := s.Len()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIndexNotFound
	}
	last := n - 1
	if pos != last {
		moved, err := s.At(last)
		if err != nil {
			return err
		}
		if err := s.Set(pos, moved); err != nil {
			return err
		}
		if err := s.SetPosition(moved, pos); err != nil {
			return err
		}
	}
	if err := s.Truncate(last); err != nil {
		return err
	}
	return s.DeletePosition(k)
}

// IndexSet is the in-memory IndexStore.
type IndexSet[K comparable] struct {
	items []K
	pos   map[K]uint64
}

func NewIndexSet[K comparable]() *IndexSet[K] {
	return &IndexSet[K]{pos: make(map[K]uint64)}
}

func (s *IndexSet[K]) Len() (uint64, error) { return uint64(len(s.items)), nil }

func (s *IndexSet[K]) At(pos uint64) (K, error) {
	if pos >= uint64(len(s.items)) {
		var zero K
		return zero, ErrIndexNotFound
	}
	return s.items[pos], nil
}

func (s *IndexSet[K]) Set(pos uint64, k K) error {
	switch {
	case pos < uint64(len(s.items)):
		s.items[pos] = k
	case pos == uint64(len(s.items)):
		s.items = append(s.items, k)
	default:
		return ErrIndexNotFound
	}
	return nil
}

func (s *IndexSet[K]) Truncate(n uint64) error {
	if n > uint64(len(s.items)) {
		return ErrIndexNotFound
	}
	s.items = s.items[:n]
	return nil
}

func (s *IndexSet[K]) Position(k K) (uint64, bool, error) {
	p, ok := s.pos[k]
	return p, ok, nil
}

func (s *IndexSet[K]) SetPosition(k K, pos uint64) error {
	s.pos[k] = pos
	return nil
}

func (s *IndexSet[K]) DeletePosition(k K) error {
	delete(s.pos, k)
	return nil
}

// Items returns a copy of the elements in list order.
func (s *IndexSet[K]) Items() []K {
	return append([]K(nil), s.items...)
}
