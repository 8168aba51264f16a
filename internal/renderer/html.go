package renderer

import (
	"bytes"
	"context"
	"html/template"
)

const htmlReportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
</head>
<body>
<h1>{{ .Title }}</h1>
<p>Report {{ .ReportID }} generated at {{ .GeneratedAt.Format "2006-01-02 15:04:05 MST" }}</p>
{{ range .Sections }}
<h2>{{ .Heading }}</h2>
<p>{{ .Body }}</p>
{{ end }}
</body>
</html>
`

type HTMLRenderer struct {
	tmpl *template.Template
}

var _ Renderer = (*HTMLRenderer)(nil)

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		tmpl: template.Must(template.New("report").Parse(htmlReportTemplate)),
	}
}

func (r *HTMLRenderer) Render(ctx context.Context, data ReportData) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
