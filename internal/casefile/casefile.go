// Package casefile loads the case definitions and student roster that drive a run.
package casefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// ID is a participant identifier. Case files may spell it as a number or a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("participant id %s: want string or number", b)
	}
	*id = ID(b)
	return nil
}

func (id *ID) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: participant id must be a scalar", n.Line)
	}
	*id = ID(strings.TrimSpace(n.Value))
	return nil
}

// Info is free-form course metadata passed to the template. course and
// semester also prefix group directory names.
type Info map[string]any

func (i Info) get(key string) string {
	v, ok := i[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (i Info) Course() string   { return i.get("course") }
func (i Info) Semester() string { return i.get("semester") }

// Group is one set of participants checked together.
type Group struct {
	Students []ID   `json:"students" yaml:"students"`
	Ignore   []ID   `json:"ignore,omitempty" yaml:"ignore,omitempty"` // left off the roster, still matched
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
}

// IDs returns every participant of the group in declared order.
func (g Group) IDs() []string {
	out := make([]string, 0, len(g.Students))
	for _, s := range g.Students {
		out = append(out, string(s))
	}
	return out
}

// Members returns the participants that belong on the roster (ignore subset removed).
func (g Group) Members() []string {
	skip := make(map[ID]bool, len(g.Ignore))
	for _, s := range g.Ignore {
		skip[s] = true
	}
	out := make([]string, 0, len(g.Students))
	for _, s := range g.Students {
		if !skip[s] {
			out = append(out, string(s))
		}
	}
	return out
}

// Case is one report plus the groups evaluated against it.
type Case struct {
	Report string  `json:"moss" yaml:"moss"`
	Name   string  `json:"shortname" yaml:"shortname"`
	Groups []Group `json:"matches" yaml:"matches"`
}

// File is the whole case file.
type File struct {
	Info     Info           `json:"info" yaml:"info"`
	Reporter map[string]any `json:"reporter" yaml:"reporter"`
	Students map[ID]string  `json:"students,omitempty" yaml:"students,omitempty"`
	Cases    []Case         `json:"cases" yaml:"cases"`
}

// AddRoster merges id → name entries over the inline students map.
func (f *File) AddRoster(roster map[string]string) {
	if f.Students == nil {
		f.Students = make(map[ID]string, len(roster))
	}
	for id, name := range roster {
		f.Students[ID(id)] = name
	}
}

// Name returns the display name for id, or "" when unknown.
func (f *File) Name(id string) string {
	return f.Students[ID(id)]
}

// Validate reports every structural problem at once.
func (f *File) Validate() error {
	var errs []error
	if len(f.Cases) == 0 {
		errs = append(errs, errors.New("no cases defined"))
	}
	// shortnames name the output directories, which are lower case
	seen := make(map[string]int, len(f.Cases))
	for i, c := range f.Cases {
		if strings.TrimSpace(c.Report) == "" {
			errs = append(errs, fmt.Errorf("case %d: missing report locator (moss)", i))
		}
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			errs = append(errs, fmt.Errorf("case %d: missing shortname", i))
		} else if first, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("case %d: shortname %q already used by case %d", i, c.Name, first))
		} else {
			seen[name] = i
		}
		for j, g := range c.Groups {
			if len(g.Students) == 0 {
				errs = append(errs, fmt.Errorf("case %q group %d: no students", c.Name, j))
			}
		}
	}
	return errors.Join(errs...)
}
