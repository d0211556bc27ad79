package mailer

import (
	"bytes"
	"embed"
	"html/template"
	"path/filepath"

	"github.com/rotisserie/eris"
)

//go:embed templates/*.html
var builtinTemplates embed.FS

// Renderer renders a named HTML template with the given data.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// TemplateRenderer renders html/template definitions. Built-in templates
// are always loaded; templates in an override directory replace them by name.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewRenderer parses the built-in templates and, when dir is non-empty, every
// *.html file in dir.
func NewRenderer(dir string) (*TemplateRenderer, error) {
	tmpl, err := template.New("mail").ParseFS(builtinTemplates, "templates/*.html")
	if err != nil {
		return nil, eris.Wrap(err, "mailer: parse builtin templates")
	}
	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.html"))
		if err != nil {
			return nil, eris.Wrapf(err, "mailer: glob %s", dir)
		}
		if len(matches) > 0 {
			if tmpl, err = tmpl.ParseFiles(matches...); err != nil {
				return nil, eris.Wrapf(err, "mailer: parse templates in %s", dir)
			}
		}
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

func (r *TemplateRenderer) Render(name string, data any) (string, error) {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return "", eris.Errorf("mailer: template %q not defined", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "mailer: render %s", name)
	}
	return buf.String(), nil
}
