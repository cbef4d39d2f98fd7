package puzzle

import "sort"

// TopologyCount is a distinct puzzling step tree with the number of
// trials which produced it.
type TopologyCount struct {
	// Topology is the canonical tree with taxa numbers.
	Topology string `json:"topology"`
	Count    int    `json:"count"`
}

// Registry counts distinct puzzling step trees.
type Registry map[string]int

// Add counts a tree.
func (r Registry) Add(topology string, count int) {
	r[topology] += count
}

// Merge adds the counts of another registry.
func (r Registry) Merge(other Registry) {
	for t, c := range other {
		r[t] += c
	}
}

// Sorted returns the trees, most frequent first. Equal counts are
// ordered by the canonical string.
func (r Registry) Sorted() []TopologyCount {
	res := make([]TopologyCount, 0, len(r))
	for t, c := range r {
		res = append(res, TopologyCount{t, c})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return res[i].Topology < res[j].Topology
	})
	return res
}
