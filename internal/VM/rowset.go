package VM

import "sort"

// RowSet is a sorted set of rowids, built by RowSetAdd/RowSetTest and
// drained in ascending order by RowSetRead. Inserts are batched and
// sorted lazily on the first ordered read, matching the insert-phase /
// read-phase usage the compiler emits.
type RowSet struct {
	ids    []int64
	sorted bool
}

// NewRowSet returns an empty set.
func NewRowSet() *RowSet { return &RowSet{sorted: true} }

// Len reports how many rowids the set holds.
func (rs *RowSet) Len() int { return len(rs.ids) }

// Add inserts id; duplicates are tolerated and removed on sort.
func (rs *RowSet) Add(id int64) {
	rs.ids = append(rs.ids, id)
	rs.sorted = false
}

func (rs *RowSet) ensureSorted() {
	if rs.sorted {
		return
	}
	sort.Slice(rs.ids, func(i, j int) bool { return rs.ids[i] < rs.ids[j] })
	out := rs.ids[:0]
	for i, id := range rs.ids {
		if i == 0 || id != rs.ids[i-1] {
			out = append(out, id)
		}
	}
	rs.ids = out
	rs.sorted = true
}

// TakeSmallest removes and returns the smallest rowid.
func (rs *RowSet) TakeSmallest() (int64, bool) {
	rs.ensureSorted()
	if len(rs.ids) == 0 {
		return 0, false
	}
	id := rs.ids[0]
	rs.ids = rs.ids[1:]
	return id, true
}

// Contains reports membership without draining.
func (rs *RowSet) Contains(id int64) bool {
	rs.ensureSorted()
	i := sort.Search(len(rs.ids), func(i int) bool { return rs.ids[i] >= id })
	return i < len(rs.ids) && rs.ids[i] == id
}
