package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hcletter/internal/casefile"
	"hcletter/internal/match"
)

func sampleData() Data {
	return Data{
		Info:     casefile.Info{"course": "VE280", "semester": "FA24"},
		Reporter: map[string]any{"name": "Grader"},
		Students: []Student{{ID: "10", Name: "Alice"}, {ID: "20"}},
		Case:     CaseInfo{Name: "p1", Report: "http://moss/results/1"},
		Source:   "chat_log #3",
		Matches: []*match.Match{
			{Seq: 0, A: "10", B: "20", PercentA: 95, PercentB: 90},
		},
		Version: "test",
	}
}

func TestBuiltin_Render(t *testing.T) {
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var sb strings.Builder
	if err := r.Render(&sb, sampleData()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		`\item Alice (10)`,
		`\item 20`,
		`chat\_log \#3`,
		`10 (95\%)`,
		`matches/match0.html`,
		`\textbf{p1}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered letter missing %q:\n%s", want, out)
		}
	}
}

func TestBuiltin_NoMatches(t *testing.T) {
	r, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	d := sampleData()
	d.Matches = nil
	d.Reporter = nil
	var sb strings.Builder
	if err := r.Render(&sb, d); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(sb.String(), "no pairs") {
		t.Errorf("expected empty-match wording:\n%s", sb.String())
	}
}

func TestLoad_CustomDirAndAssets(t *testing.T) {
	src := t.TempDir()
	tmpl := `{{range .Matches}}{{artifact .Seq "top"}} {{artifact .Seq "b"}}{{end}}`
	if err := os.WriteFile(filepath.Join(src, TemplateName), []byte(tmpl), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "logo.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "group")
	if err := r.CopyAssets(dst); err != nil {
		t.Fatalf("CopyAssets: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "logo.png")); err != nil {
		t.Errorf("asset not copied: %v", err)
	}

	path, err := r.RenderFile(dst, sampleData())
	if err != nil {
		t.Fatalf("RenderFile: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "matches/match0-top.html matches/match0-1.html" {
		t.Errorf("rendered %q", data)
	}
}

func TestLoad_BadTemplate(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, TemplateName), []byte(`{{ .Matches `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(src); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected missing template error")
	}
}

func TestArtifactPath_UnknownKind(t *testing.T) {
	if _, err := artifactPath(0, "side"); err == nil {
		t.Fatal("expected error")
	}
}
