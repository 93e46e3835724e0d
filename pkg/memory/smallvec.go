package memory

// smallIDSet is an append-only set of CardIds specialized for a heavily
// skewed fan-out distribution: most vertices have at most a handful of
// neighbors under any one descriptor, so the first few ids live inline and
// only wide fan-outs spill to a heap-allocated slice.
const smallVecInline = 4

type smallIDSet struct {
	inline    [smallVecInline]uint64
	inlineLen int
	overflow  []uint64 // only allocated once len > smallVecInline
}

// Add inserts id if not already present. Returns true if it was added.
func (s *smallIDSet) Add(id uint64) bool {
	if s.Contains(id) {
		return false
	}
	if s.inlineLen < smallVecInline {
		s.inline[s.inlineLen] = id
		s.inlineLen++
		return true
	}
	s.overflow = append(s.overflow, id)
	return true
}

// Remove deletes id if present. Returns true if it was removed.
func (s *smallIDSet) Remove(id uint64) bool {
	for i := 0; i < s.inlineLen; i++ {
		if s.inline[i] == id {
			s.inline[i] = s.inline[s.inlineLen-1]
			s.inlineLen--
			return true
		}
	}
	for i, v := range s.overflow {
		if v == id {
			s.overflow = append(s.overflow[:i], s.overflow[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether id is present.
func (s *smallIDSet) Contains(id uint64) bool {
	for i := 0; i < s.inlineLen; i++ {
		if s.inline[i] == id {
			return true
		}
	}
	for _, v := range s.overflow {
		if v == id {
			return true
		}
	}
	return false
}

// Len reports the total number of ids held.
func (s *smallIDSet) Len() int {
	return s.inlineLen + len(s.overflow)
}

// Each iterates every id in unspecified order.
func (s *smallIDSet) Each(fn func(id uint64)) {
	for i := 0; i < s.inlineLen; i++ {
		fn(s.inline[i])
	}
	for _, v := range s.overflow {
		fn(v)
	}
}

// Slice materializes the set as a plain slice, for callers (query runtime)
// that need a stable, copyable view.
func (s *smallIDSet) Slice() []uint64 {
	out := make([]uint64, 0, s.Len())
	s.Each(func(id uint64) { out = append(out, id) })
	return out
}

// Empty reports whether the set holds no ids — used so that commit can
// drop a descriptor/anchor entry entirely once its last edge is removed.
func (s *smallIDSet) Empty() bool {
	return s.inlineLen == 0 && len(s.overflow) == 0
}
