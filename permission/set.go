package permission

import "sort"

// Set is an immutable, sorted collection of permission names.
type Set struct {
	names []string
}

// NewSet builds a Set, dropping blanks and duplicates.
func NewSet(names ...string) Set {
	if len(names) == 0 {
		return Set{}
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return Set{names: out}
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	i := sort.SearchStrings(s.names, name)
	return i < len(s.names) && s.names[i] == name
}

// Names returns a copy of the sorted names.
func (s Set) Names() []string {
	return append([]string(nil), s.names...)
}

func (s Set) Len() int { return len(s.names) }

// Union returns the set of names present in s or o.
func (s Set) Union(o Set) Set {
	return NewSet(append(s.Names(), o.names...)...)
}
