package render

import (
	"fmt"
	"strings"
	"text/template"

	"hcletter/internal/evidence"
)

var funcs = template.FuncMap{
	"tex":      texEscape,
	"artifact": artifactPath,
}

var texReplacer = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`$`, `\$`,
	`&`, `\&`,
	`#`, `\#`,
	`%`, `\%`,
	`_`, `\_`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

func texEscape(v any) string {
	if v == nil {
		return ""
	}
	return texReplacer.Replace(fmt.Sprint(v))
}

var kindByName = map[string]evidence.Kind{
	"full": evidence.KindFull,
	"top":  evidence.KindTop,
	"a":    evidence.KindSideA,
	"b":    evidence.KindSideB,
}

// artifactPath resolves {{artifact .Seq "top"}} to matches/match<seq>-top.html.
func artifactPath(seq int, kind string) (string, error) {
	k, ok := kindByName[kind]
	if !ok {
		return "", fmt.Errorf("unknown artifact kind %q (full, top, a, b)", kind)
	}
	return evidence.RelPath(seq, k), nil
}
