// Package evidence downloads the supporting pages for each match of a
// report into a group's output directory.
package evidence

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"hcletter/internal/match"
)

// Kind identifies one of the four pages derived from a match's base URL.
type Kind int

const (
	KindFull  Kind = iota // full side-by-side report
	KindTop               // summary frame
	KindSideA             // first submission's fragment
	KindSideB             // second submission's fragment
)

// Kinds lists every artifact kind in retrieval order.
var Kinds = []Kind{KindFull, KindTop, KindSideA, KindSideB}

var suffixes = map[Kind]string{
	KindFull:  ".html",
	KindTop:   "-top.html",
	KindSideA: "-0.html",
	KindSideB: "-1.html",
}

var kindNames = map[Kind]string{
	KindFull:  "full report",
	KindTop:   "summary",
	KindSideA: "side-A fragment",
	KindSideB: "side-B fragment",
}

// Suffix is appended to the stripped base URL and to the local file name.
func (k Kind) Suffix() string { return suffixes[k] }

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Artifact is one file to retrieve for a match.
type Artifact struct {
	Seq  int
	Kind Kind
	URL  string
	Path string
}

// MatchesDir is the per-group subdirectory holding evidence files.
const MatchesDir = "matches"

// FileName is the evidence file name for a match sequence and kind.
func FileName(seq int, k Kind) string {
	return fmt.Sprintf("match%d%s", seq, k.Suffix())
}

// RelPath is the slash-separated path of an artifact relative to the group directory.
func RelPath(seq int, k Kind) string {
	return path.Join(MatchesDir, FileName(seq, k))
}

// Derive returns the four artifacts of m, rooted at dir.
func Derive(m *match.Match, dir string) []Artifact {
	base := strings.TrimSuffix(m.BaseURL, ".html")
	out := make([]Artifact, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, Artifact{
			Seq:  m.Seq,
			Kind: k,
			URL:  base + k.Suffix(),
			Path: filepath.Join(dir, MatchesDir, FileName(m.Seq, k)),
		})
	}
	return out
}
