package livesync

import "sort"

// Record is anything synchronized by identity.
type Record interface {
	RecordID() string
}

// Set is an ordered record set, unique by identity.
// Deleted identities are remembered and never come back within the Set's lifetime.
// A Set is not safe for concurrent use; Session guards it.
type Set[R Record] struct {
	less       func(a, b R) bool
	items      []R
	ids        map[string]struct{}
	tombstones map[string]struct{}
}

// NewSet returns an empty Set sorted by less, ties broken by identity.
func NewSet[R Record](less func(a, b R) bool) *Set[R] {
	return &Set[R]{
		less:       less,
		ids:        make(map[string]struct{}),
		tombstones: make(map[string]struct{}),
	}
}

func (s *Set[R]) sort() {
	sort.SliceStable(s.items, func(i, j int) bool {
		a, b := s.items[i], s.items[j]
		if s.less != nil {
			if s.less(a, b) {
				return true
			}
			if s.less(b, a) {
				return false
			}
		}
		return a.RecordID() < b.RecordID()
	})
}

func (s *Set[R]) indexOf(id string) int {
	for i, item := range s.items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}

// ApplyInsert adds r unless its identity is already present or was deleted.
func (s *Set[R]) ApplyInsert(r R) bool {
	id := r.RecordID()
	if _, ok := s.ids[id]; ok {
		return false
	}
	if _, ok := s.tombstones[id]; ok {
		return false
	}
	s.items = append(s.items, r)
	s.ids[id] = struct{}{}
	s.sort()
	return true
}

// ApplyUpdate replaces the record with r's identity. Unknown identities are ignored.
func (s *Set[R]) ApplyUpdate(r R) bool {
	if _, ok := s.ids[r.RecordID()]; !ok {
		return false
	}
	s.items[s.indexOf(r.RecordID())] = r
	s.sort()
	return true
}

// ApplyDelete removes id and tombstones it.
func (s *Set[R]) ApplyDelete(id string) bool {
	s.tombstones[id] = struct{}{}
	return s.remove(id)
}

func (s *Set[R]) remove(id string) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	i := s.indexOf(id)
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.ids, id)
	return true
}

// Seed replaces the contents with an authoritative result, skipping deleted identities and duplicates.
func (s *Set[R]) Seed(records []R) {
	s.items = make([]R, 0, len(records))
	s.ids = make(map[string]struct{}, len(records))
	for _, r := range records {
		id := r.RecordID()
		if _, ok := s.tombstones[id]; ok {
			continue
		}
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.items = append(s.items, r)
		s.ids[id] = struct{}{}
	}
	s.sort()
}

func (s *Set[R]) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Set[R]) Get(id string) (R, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	var zero R
	return zero, false
}

func (s *Set[R]) Len() int { return len(s.items) }

// Records returns a copy of the ordered records.
func (s *Set[R]) Records() []R {
	out := make([]R, len(s.items))
	copy(out, s.items)
	return out
}
