package dedupe

// Set keeps strings in first-insertion order and reports repeats.
// It is not safe for concurrent use.
type Set struct {
	items map[string]struct{}
	order []string
}

// NewSet creates a set sized for capacity entries.
func NewSet(capacity int) *Set {
	if capacity < 0 {
		capacity = 0
	}
	return &Set{
		items: make(map[string]struct{}, capacity),
		order: make([]string, 0, capacity),
	}
}

// IsSeen returns true when the key has already been added.
func (s *Set) IsSeen(key string) bool {
	_, ok := s.items[key]
	return ok
}

// Add records key and reports whether it was new.
func (s *Set) Add(key string) bool {
	if s.IsSeen(key) {
		return false
	}
	s.items[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

// Len returns the number of distinct keys.
func (s *Set) Len() int {
	return len(s.order)
}

// Values returns the keys in insertion order.
func (s *Set) Values() []string {
	return append([]string(nil), s.order...)
}

// Unique returns values without repeats, keeping the first occurrence of each.
func Unique(values []string) []string {
	s := NewSet(len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s.Values()
}
