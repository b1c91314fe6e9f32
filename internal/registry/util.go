package registry

import (
	"strings"
	"time"
)

type strset map[string]struct{}

func newStrset(xs []string) strset {
	s := make(strset, len(xs))
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			s.add(x)
		}
	}
	return s
}

func (s strset) add(v string) {
	s[v] = struct{}{}
}

func (s strset) has(v string) bool {
	_, ok := s[v]
	return ok
}

func now() time.Time {
	return time.Now().UTC()
}
