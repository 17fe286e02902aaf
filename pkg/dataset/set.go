package dataset

// Set is an unordered collection of lines. Line containment, disjointness,
// and overlap are what the matching engine spends its time on, so the
// operations below are the hot path of a scan.
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s.Add(item)
	}
	return s
}

func (s Set) Add(v string) {
	s[v] = struct{}{}
}

func (s Set) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// SubsetOf reports whether every element of s is in t. Iteration
// short-circuits on the first missing element.
func (s Set) SubsetOf(t Set) bool {
	if len(s) > len(t) {
		return false
	}
	for v := range s {
		if !t.Contains(v) {
			return false
		}
	}
	return true
}

// Disjoint reports whether s and t share no element.
func (s Set) Disjoint(t Set) bool {
	small, large := s, t
	if len(large) < len(small) {
		small, large = large, small
	}
	for v := range small {
		if large.Contains(v) {
			return false
		}
	}
	return true
}

// IntersectionLen counts elements present in both sets.
func (s Set) IntersectionLen(t Set) int {
	small, large := s, t
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for v := range small {
		if large.Contains(v) {
			n++
		}
	}
	return n
}

func (s Set) Equal(t Set) bool {
	return len(s) == len(t) && s.SubsetOf(t)
}
