// Package render fills the letter template for one group.
package render

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"hcletter/internal/casefile"
	"hcletter/internal/match"
)

// TemplateName is the template file inside a template directory, and
// OutputName is the rendered file written into each group directory.
const (
	TemplateName = "template.tex"
	OutputName   = "letter.tex"
)

//go:embed template/*
var builtin embed.FS

// Student is one roster entry shown in the letter.
type Student struct {
	ID   string
	Name string
}

// CaseInfo identifies the case a group belongs to.
type CaseInfo struct {
	Name   string
	Report string
}

// Data is everything the template sees.
type Data struct {
	Info     casefile.Info
	Reporter map[string]any
	Students []Student
	Case     CaseInfo
	Source   string
	Matches  []*match.Match
	Version  string
}

// Renderer holds a parsed template and the directory of assets that ship with it.
type Renderer struct {
	tmpl   *template.Template
	assets fs.FS
}

// Load parses dir/template.tex. An empty dir selects the built-in template.
func Load(dir string) (*Renderer, error) {
	var assets fs.FS
	if dir == "" {
		sub, err := fs.Sub(builtin, "template")
		if err != nil {
			return nil, fmt.Errorf("builtin template: %w", err)
		}
		assets = sub
	} else {
		assets = os.DirFS(dir)
	}
	src, err := fs.ReadFile(assets, TemplateName)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	tmpl, err := template.New(TemplateName).Funcs(funcs).Option("missingkey=zero").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &Renderer{tmpl: tmpl, assets: assets}, nil
}

// Render executes the template into w.
func (r *Renderer) Render(w io.Writer, d Data) error {
	if err := r.tmpl.Execute(w, d); err != nil {
		return fmt.Errorf("render %s: %w", TemplateName, err)
	}
	return nil
}

// RenderFile writes the rendered letter to dir/letter.tex and returns its path.
func (r *Renderer) RenderFile(dir string, d Data) (string, error) {
	path := filepath.Join(dir, OutputName)
	var sb strings.Builder
	if err := r.Render(&sb, d); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// CopyAssets copies the template directory into dst, which must not already
// contain any of its files.
func (r *Renderer) CopyAssets(dst string) error {
	if err := os.CopyFS(dst, r.assets); err != nil {
		return fmt.Errorf("copy template assets: %w", err)
	}
	return nil
}
