package notifx

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TemplateRegistry stores and renders named Go html/templates.
type TemplateRegistry struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewTemplateRegistry creates a new template registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*template.Template),
	}
}

// Built-in template names.
const (
	TemplateRenderReady = "render-ready"
	TemplatePlanReady   = "plan-ready"
	TemplateGeneric     = "generic"
)

const layoutOpen = `<!doctype html><html><body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933">`
const layoutClose = `<p style="color:#7b8794;font-size:12px">You are receiving this because you started a renovation plan.</p></body></html>`

var builtinTemplates = map[string]string{
	TemplateRenderReady: layoutOpen + `
<h2>Your rendering is ready</h2>
<p>{{with .roomName}}The new look for your {{.}} is ready.{{else}}Your new rendering is ready.{{end}}</p>
{{with .url}}<p><a href="{{.}}">Open the rendering</a></p>{{end}}` + layoutClose,

	TemplatePlanReady: layoutOpen + `
<h2>Your renovation plan</h2>
<p>The {{or .format "document"}} plan{{with .roomName}} for your {{.}}{{end}} has been generated.</p>
{{with .url}}<p><a href="{{.}}">Download the plan</a></p>{{end}}` + layoutClose,

	TemplateGeneric: layoutOpen + `
{{with .heading}}<h2>{{.}}</h2>{{end}}
<p>{{.message}}</p>` + layoutClose,
}

// DefaultTemplates returns a registry holding the built-in templates.
func DefaultTemplates() *TemplateRegistry {
	r := NewTemplateRegistry()
	for name, src := range builtinTemplates {
		r.templates[name] = template.Must(template.New(name).Option("missingkey=zero").Parse(src))
	}
	return r
}

// Register parses and stores a template by name.
func (r *TemplateRegistry) Register(name, tmplString string) error {
	t, err := template.New(name).Option("missingkey=zero").Parse(tmplString)
	if err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}

	r.mu.Lock()
	r.templates[name] = t
	r.mu.Unlock()

	return nil
}

// LoadDir registers every *.html file of dir under its base name, so
// dir/welcome.html becomes template "welcome". Built-ins with the same name are replaced.
func (r *TemplateRegistry) LoadDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return 0, notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("dir", dir)
	}
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return 0, notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("file", p)
		}
		name := strings.TrimSuffix(filepath.Base(p), ".html")
		if err := r.Register(name, string(src)); err != nil {
			return 0, err
		}
	}
	return len(paths), nil
}

// Has reports whether a template is registered under name.
func (r *TemplateRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Render executes a named template with the given data and returns the result.
func (r *TemplateRegistry) Render(name string, data any) (string, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return "", notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}

	return buf.String(), nil
}
