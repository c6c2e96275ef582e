package report

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"hcletter/internal/match"
)

// Parser turns a raw similarity report into a match index. base, when not
// nil, resolves relative link targets.
type Parser interface {
	Parse(r io.Reader, base *url.URL) (*match.Index, error)
}

// MOSSParser reads the HTML results page produced by MOSS: one table row per
// match after a header row, each row holding two links whose text ends in
// ".../<id>/ (<pct>%)".
type MOSSParser struct{}

var _ Parser = MOSSParser{}

type cell struct {
	id      string
	percent int
	href    string
}

func (MOSSParser) Parse(r io.Reader, base *url.URL) (*match.Index, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, &FormatError{Row: -1, Reason: "parse html", Err: err}
	}
	rows := findAll(doc, atom.Tr)
	if len(rows) == 0 {
		return nil, &FormatError{Row: -1, Reason: "no header row"}
	}

	ms := make([]match.Match, 0, len(rows)-1)
	for i, tr := range rows[1:] {
		anchors := findAll(tr, atom.A)
		if len(anchors) != 2 {
			return nil, &FormatError{Row: i, Reason: fmt.Sprintf("want 2 linked cells, got %d", len(anchors))}
		}
		left, err := parseCell(anchors[0], base)
		if err != nil {
			return nil, &FormatError{Row: i, Reason: "first cell", Err: err}
		}
		if left.href == "" {
			return nil, &FormatError{Row: i, Reason: "first cell has no link target"}
		}
		right, err := parseCell(anchors[1], base)
		if err != nil {
			return nil, &FormatError{Row: i, Reason: "second cell", Err: err}
		}
		ms = append(ms, match.Match{
			Seq:      i,
			A:        left.id,
			B:        right.id,
			PercentA: left.percent,
			PercentB: right.percent,
			BaseURL:  left.href,
		})
	}
	return match.NewIndex(ms), nil
}

func parseCell(a *html.Node, base *url.URL) (cell, error) {
	text := textOf(a)
	parts := strings.Split(text, "/")
	if len(parts) < 2 {
		return cell{}, fmt.Errorf("cannot split %q into id and percentage", text)
	}
	id := strings.TrimSpace(parts[len(parts)-2])
	if id == "" {
		return cell{}, fmt.Errorf("empty participant id in %q", text)
	}
	raw := strings.Trim(parts[len(parts)-1], "()% \t\r\n")
	pct, err := strconv.Atoi(raw)
	if err != nil {
		return cell{}, fmt.Errorf("percentage in %q: %w", text, err)
	}
	if pct < 0 || pct > 100 {
		return cell{}, errors.New("percentage out of range: " + raw)
	}

	href := attr(a, "href")
	if href != "" && base != nil {
		ref, err := url.Parse(href)
		if err != nil {
			return cell{}, fmt.Errorf("link target %q: %w", href, err)
		}
		href = base.ResolveReference(ref).String()
	}
	return cell{id: id, percent: pct, href: href}, nil
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
