package template

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// ErrUnknownTemplate is returned when a template id does not resolve.
var ErrUnknownTemplate = errors.New("unknown template")

// trackingPixel is appended to every registered body so the open tracker has
// an artifact to resolve. The URL is a template parameter, not a post-render
// substitution.
const trackingPixel = `{{if .TrackingURL}}<img src="{{.TrackingURL}}" width="1" height="1" alt="" style="display:none;">{{end}}`

type entry struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Registry maps template ids to subject and HTML body templates. Templates
// reference caller data as {{.Data.Field}} and the tracking URL as
// {{.TrackingURL}}.
type Registry struct {
	templates map[string]*entry
}

type renderContext struct {
	Data        map[string]interface{}
	TrackingURL string
}

// NewRegistry returns a registry preloaded with the application templates.
func NewRegistry() (*Registry, error) {
	r := &Registry{templates: make(map[string]*entry)}

	for id, t := range builtins {
		if err := r.Register(id, t.subject, t.body); err != nil {
			return nil, fmt.Errorf("builtin template %q: %w", id, err)
		}
	}

	return r, nil
}

// Register parses and stores a template under id, replacing any previous
// registration.
func (r *Registry) Register(id, subject, body string) error {
	subjTmpl, err := texttemplate.New(id + ".subject").Parse(subject)
	if err != nil {
		return fmt.Errorf("parse subject: %w", err)
	}

	bodyTmpl, err := htmltemplate.New(id).Parse(body + trackingPixel)
	if err != nil {
		return fmt.Errorf("parse body: %w", err)
	}

	r.templates[id] = &entry{subject: subjTmpl, body: bodyTmpl}
	return nil
}

// Has reports whether id resolves without rendering anything.
func (r *Registry) Has(id string) bool {
	_, ok := r.templates[id]
	return ok
}

// Render produces the subject and HTML body for a template id. Unknown ids
// fail with ErrUnknownTemplate.
func (r *Registry) Render(id string, data map[string]interface{}, trackingURL string) (subject, html string, err error) {
	t, ok := r.templates[id]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}

	rc := renderContext{Data: data, TrackingURL: trackingURL}

	var subjBuf bytes.Buffer
	if err := t.subject.Execute(&subjBuf, rc); err != nil {
		return "", "", fmt.Errorf("render subject %q: %w", id, err)
	}

	var bodyBuf bytes.Buffer
	if err := t.body.Execute(&bodyBuf, rc); err != nil {
		return "", "", fmt.Errorf("render body %q: %w", id, err)
	}

	return subjBuf.String(), bodyBuf.String(), nil
}
