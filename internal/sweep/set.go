package sweep

import (
	"sort"
	"strconv"
	"strings"
)

// ProcessID is a native process identifier on the worker machine.
type ProcessID int

func (p ProcessID) String() string {
	return strconv.Itoa(int(p))
}

// ParseProcessID converts a decimal pid token as printed by the enumeration tools.
func ParseProcessID(raw string) (ProcessID, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return ProcessID(n), true
}

// CandidateSet is an unordered set of process ids.
type CandidateSet map[ProcessID]struct{}

// NewCandidateSet returns a set holding the given ids.
func NewCandidateSet(ids ...ProcessID) CandidateSet {
	s := make(CandidateSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s CandidateSet) Add(id ProcessID) {
	s[id] = struct{}{}
}

func (s CandidateSet) Remove(id ProcessID) {
	delete(s, id)
}

func (s CandidateSet) Has(id ProcessID) bool {
	_, ok := s[id]
	return ok
}

func (s CandidateSet) Len() int {
	return len(s)
}

// Union adds every member of other to s.
func (s CandidateSet) Union(other CandidateSet) {
	for id := range other {
		s.Add(id)
	}
}

// Clone returns an independent copy.
func (s CandidateSet) Clone() CandidateSet {
	out := make(CandidateSet, len(s))
	out.Union(s)
	return out
}

// Sorted returns the members in ascending order.
func (s CandidateSet) Sorted() []ProcessID {
	out := make([]ProcessID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s CandidateSet) String() string {
	ids := s.Sorted()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
