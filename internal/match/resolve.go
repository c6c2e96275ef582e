package match

import "sort"

// Resolve returns the matches among every unordered pair of ids that exist
// in idx, sorted by Seq. Pairs without a match are skipped; an empty,
// non-nil slice means the group has no relevant matches.
func Resolve(idx *Index, ids []string) []*Match {
	out := []*Match{}
	seen := make(map[int]bool)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			if a == b {
				continue
			}
			m, ok := idx.Lookup(a, b)
			if !ok || seen[m.Seq] {
				continue
			}
			seen[m.Seq] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
