package page

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrTemplateNotFound = errors.New("template not found")

// Renderer executes the embedded HTML templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer(fsys fs.FS, patterns ...string) (*Renderer, error) {
	t, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Render executes template name into w. Output is buffered so a failed
// execution writes nothing.
func (r *Renderer) Render(w io.Writer, name string, data interface{}) error {
	t := r.templates.Lookup(name)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (r *Renderer) Has(name string) bool {
	return r.templates.Lookup(name) != nil
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string {
		return strings.Replace(d.StringFixed(2), ".", ",", 1)
	},
	"upper": strings.ToUpper,
}
