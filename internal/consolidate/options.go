package consolidate

import (
	"sort"
	"strings"
)

// LockPolicy decides whether a locked HRU may grow by absorbing a merged
// neighbour. Locked HRUs are never removed under either policy.
type LockPolicy string

const (
	LockStrict  LockPolicy = "strict"
	LockReceive LockPolicy = "receive"
)

func ParseLockPolicy(s string) (LockPolicy, error) {
	switch LockPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", LockStrict:
		return LockStrict, nil
	case LockReceive:
		return LockReceive, nil
	default:
		return "", invalidf("unknown lock policy %q (want %q or %q)", s, LockStrict, LockReceive)
	}
}

type Options struct {
	// AreaTol is the minimum HRU area as a fraction of its sub-basin's area.
	// Zero disables consolidation.
	AreaTol    float64
	Protected  IDSet
	Locked     IDSet
	Merge      bool
	LockPolicy LockPolicy
}

type IDSet map[int64]bool

func NewIDSet(ids []int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func (s IDSet) Has(id int64) bool {
	return s[id]
}

// Sorted returns the IDs in the set in ascending order.
func (s IDSet) Sorted() []int64 {
	if len(s) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(s))
	for id, ok := range s {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (o Options) exempt(id int64) bool {
	return o.Locked.Has(id) || o.Protected.Has(id)
}

func (o Options) canReceive(id int64) bool {
	if o.Locked.Has(id) {
		return o.LockPolicy == LockReceive
	}
	return true
}
