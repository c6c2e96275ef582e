// Package match holds the pairwise similarity graph read from a report:
// Match records, the undirected Index over them, and group resolution.
package match

import (
	"slices"
	"sort"
)

// Match is one reported similarity between two submissions.
type Match struct {
	Seq      int    // row position in the report, header excluded; stable tie-break key
	A        string // participant in the first linked cell
	B        string // participant in the second linked cell
	PercentA int
	PercentB int

	// BaseURL is the link target of the first cell only. The second cell's
	// link is discarded by the report adapter; evidence suffixes derive from
	// this locator alone.
	BaseURL string
}

// Index answers "is there a match between a and b" in either direction.
// It is immutable after NewIndex and safe for concurrent readers.
type Index struct {
	all   []*Match
	pairs map[string]map[string]*Match
}

// NewIndex registers every match under both participants. When the same
// unordered pair appears more than once, the first occurrence in ms wins.
func NewIndex(ms []Match) *Index {
	idx := &Index{pairs: make(map[string]map[string]*Match)}
	for i := range ms {
		m := ms[i]
		if _, dup := idx.Lookup(m.A, m.B); dup {
			continue
		}
		p := &m
		idx.link(p.A, p.B, p)
		idx.link(p.B, p.A, p)
		idx.all = append(idx.all, p)
	}
	sort.SliceStable(idx.all, func(i, j int) bool { return idx.all[i].Seq < idx.all[j].Seq })
	return idx
}

func (idx *Index) link(from, to string, m *Match) {
	row, ok := idx.pairs[from]
	if !ok {
		row = make(map[string]*Match)
		idx.pairs[from] = row
	}
	row[to] = m
}

// Lookup returns the match between a and b. Order of a and b does not matter.
func (idx *Index) Lookup(a, b string) (*Match, bool) {
	m, ok := idx.pairs[a][b]
	return m, ok
}

// All returns every match in report order.
func (idx *Index) All() []*Match {
	return slices.Clone(idx.all)
}

// Len is the number of distinct pairs in the index.
func (idx *Index) Len() int { return len(idx.all) }

// Participants lists every participant that appears in any match, sorted.
func (idx *Index) Participants() []string {
	out := make([]string, 0, len(idx.pairs))
	for id := range idx.pairs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
