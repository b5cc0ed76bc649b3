package graph

import (
	"bytes"
	"io"
	"strings"
	"text/template"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

const ninjaTemplate = `# generated build graph, do not edit by hand
{{ range .Rules }}
rule {{ .ID }}
  command = {{ .Command }}
  description = {{ .Description }}
{{- if .Depfile }}
  depfile = {{ .Depfile }}
  deps = gcc
{{- end }}
{{ end }}
{{ range .Edges }}
build {{ join .Outputs }}: {{ .RuleID }}{{ if .ExplicitDeps }} {{ join .ExplicitDeps }}{{ end }}{{ if .ImplicitDeps }} | {{ join .ImplicitDeps }}{{ end }}{{ if .OrderOnlyDeps }} || {{ join .OrderOnlyDeps }}{{ end }}
{{ end }}
`

var ninjaTmpl = template.Must(template.New("build.ninja").Funcs(template.FuncMap{
	"join": func(paths []string) string { return strings.Join(quoteAll(paths), " ") },
}).Parse(ninjaTemplate))

func quoteAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = ninjaEscape(p)
	}
	return out
}

// ninjaEscape escapes the characters ninja's lexer treats specially
// inside a path token: space, ':', and '$' itself.
func ninjaEscape(p string) string {
	r := strings.NewReplacer("$", "$$", " ", "$ ", ":", "$:")
	return r.Replace(p)
}

// Render writes the graph in ninja syntax to w.
func (g *Graph) Render(w io.Writer) error {
	return ninjaTmpl.Execute(w, g)
}

// WriteFile atomically writes the rendered graph to path, via a
// temp-file-then-rename so a concurrent reader (or a crash mid-write)
// never observes a partial build-graph file.
func (g *Graph) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := g.Render(&buf); err != nil {
		return xerrors.Errorf("rendering %s: %w", path, err)
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return xerrors.Errorf("creating temp file for %s: %w", path, err)
	}
	defer t.Cleanup()
	if _, err := t.Write(buf.Bytes()); err != nil {
		return xerrors.Errorf("writing %s: %w", path, err)
	}
	return t.CloseAtomicallyReplace()
}
