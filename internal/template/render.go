// Package template renders outbound message content from templates with
// named variable bindings.
package template

import (
	"fmt"
	"strings"
	"text/template"
)

// RenderError reports a template that could not be rendered against the
// supplied bindings, most commonly a missing variable.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering template %q: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Render substitutes bindings into content. Every variable referenced by
// the template must be bound; a missing variable fails the render rather
// than emitting a hole into an outbound message.
func Render(name, content string, bindings map[string]string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return "", &RenderError{Template: name, Err: err}
	}

	vars := map[string]string{}
	for k, v := range bindings {
		vars[k] = v
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", &RenderError{Template: name, Err: err}
	}
	return buf.String(), nil
}
