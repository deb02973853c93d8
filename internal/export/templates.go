package export

import (
	"bytes"
	"html/template"
	"time"
)

type templateData struct {
	Title       string
	ContentHTML string
	UpdatedAt   time.Time
}

var draftTemplate = template.Must(template.New("draft").Funcs(template.FuncMap{
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
}).Parse(draftTemplateText))

func renderDraftHTML(data templateData) (string, error) {
	var buf bytes.Buffer
	if err := draftTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const draftTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 720px; margin: 2rem auto; color: #1a1a1a; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    p { margin: 0 0 1em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if not .UpdatedAt.IsZero}}<div class="meta">Last edited {{.UpdatedAt.Format "Jan 2, 2006"}}</div>{{end}}
  <div>{{.ContentHTML | safeHTML}}</div>
</body>
</html>`
