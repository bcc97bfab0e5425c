// Package view renders lifecycle snapshots of the users loader.
package view

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/samvad-hq/userloader/internal/domain"
	"github.com/samvad-hq/userloader/internal/users"
	"github.com/samvad-hq/userloader/pkg/lifecycle"
)

// Page is the render model derived from a lifecycle state.
// Exactly one of Loading, Error or Loaded is set; Idle is true before the first trigger.
type Page struct {
	Title   string
	Idle    bool
	Loading bool
	Loaded  bool
	Error   string
	Users   []domain.User
	Names   []string
}

const pageTitle = "This is UserList"

// DefaultText is the terminal template.
const DefaultText = `{{- if .Loading }}Loading...
{{ else if .Error }}{{ .Error | toJson }}
{{ else if .Loaded }}{{ range .Names }}{{ . }}
{{ end }}{{ end -}}`

// DefaultHTML is the web template.
const DefaultHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{ .Title }}</title></head>
<body>
<div class="App">
{{- if .Idle }}
<form method="post" action="/load"><button type="submit">Get Users</button></form>
{{- else }}
<div>
<h1>{{ .Title }}</h1>
{{- if .Loading }}
<h2 class="loading">Loading...</h2>
{{- else if .Error }}
<h2 class="error">{{ .Error | toJson }}</h2>
{{- else }}
<div class="users">
{{- range .Names }}
<p class="user">{{ . }}</p>
{{- end }}
</div>
{{- end }}
</div>
{{- end }}
</div>
</body>
</html>
`

// Build derives the page for st. Loading wins over error, error over data. A response that
// cannot be decoded is shown as an error.
func Build(st lifecycle.State, usersPath string) Page {
	p := Page{Title: pageTitle}
	switch {
	case st.Loading:
		p.Loading = true
	case st.Err != nil:
		p.Error = errorMessage(st.Err)
	case st.Response != nil:
		list, err := users.FromResponse(st.Response, usersPath)
		if err != nil {
			p.Error = errorMessage(err)
			return p
		}
		p.Loaded = true
		p.Users = list
		p.Names = users.Names(list)
	default:
		p.Idle = true
	}
	return p
}

func errorMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	return msg
}

// Renderer writes pages through a text or HTML template.
type Renderer struct {
	usersPath string
	text      *texttemplate.Template
	html      *htmltemplate.Template
}

// Options customizes a Renderer. Empty templates select the defaults.
type Options struct {
	UsersPath    string
	TextTemplate string
	HTMLTemplate string
}

// NewRenderer parses both templates with the sprig function map.
func NewRenderer(opts Options) (*Renderer, error) {
	textSrc := opts.TextTemplate
	if strings.TrimSpace(textSrc) == "" {
		textSrc = DefaultText
	}
	htmlSrc := opts.HTMLTemplate
	if strings.TrimSpace(htmlSrc) == "" {
		htmlSrc = DefaultHTML
	}

	text, err := texttemplate.New("text").Funcs(sprig.TxtFuncMap()).Parse(textSrc)
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	html, err := htmltemplate.New("html").Funcs(sprig.FuncMap()).Parse(htmlSrc)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}

	return &Renderer{usersPath: opts.UsersPath, text: text, html: html}, nil
}

// Page derives the render model for st using the renderer's users path.
func (r *Renderer) Page(st lifecycle.State) Page {
	return Build(st, r.usersPath)
}

// Text renders st with the text template.
func (r *Renderer) Text(w io.Writer, st lifecycle.State) error {
	return r.text.Execute(w, r.Page(st))
}

// HTML renders st with the HTML template.
func (r *Renderer) HTML(w io.Writer, st lifecycle.State) error {
	return r.html.Execute(w, r.Page(st))
}

// TextString is Text into a string.
func (r *Renderer) TextString(st lifecycle.State) (string, error) {
	var buf bytes.Buffer
	if err := r.Text(&buf, st); err != nil {
		return "", err
	}
	return buf.String(), nil
}
