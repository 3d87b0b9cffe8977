package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var changelogTemplate = template.Must(template.New("changelog").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(changelogHTML))

// TemplateData holds data for changelog template rendering
type TemplateData struct {
	PageTitle       string
	PageDescription string
	GeneratedAt     time.Time
	Posts           []TemplatePost
}

// TemplatePost holds one rendered post for the template
type TemplatePost struct {
	Title       string
	BodyHTML    template.HTML
	Tags        []string
	PublishedAt time.Time
}

// RenderChangelogHTML renders the changelog template with provided data
func RenderChangelogHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := changelogTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const changelogHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.PageTitle}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .post { margin: 2rem 0; page-break-inside: avoid; }
    .post h2 { margin-bottom: 0.25rem; }
    .post .date { color: #666; font-size: 0.85em; }
    .tag { display: inline-block; background: #eef; border-radius: 3px; padding: 0 6px; font-size: 0.8em; margin-right: 4px; }
  </style>
</head>
<body>
  <h1>{{.PageTitle}}</h1>
  {{if .PageDescription}}<p>{{.PageDescription}}</p>{{end}}
  <div class="meta">Exported {{formatDate .GeneratedAt "Jan 2, 2006"}}</div>
  {{range .Posts}}
  <div class="post">
    <h2>{{.Title}}</h2>
    <div class="date">{{formatDate .PublishedAt "Jan 2, 2006"}}
      {{range .Tags}}<span class="tag">{{lower .}}</span>{{end}}
    </div>
    <div>{{.BodyHTML}}</div>
  </div>
  {{end}}
</body>
</html>`
