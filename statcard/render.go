package statcard

import (
	"bytes"
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

var cardTemplate = template.Must(template.ParseFS(templateFS, "templates/card.html"))

// Render writes the HTML fragment for v.
func Render(w io.Writer, v View) error {
	return cardTemplate.ExecuteTemplate(w, "card", v)
}

// RenderHTML renders v to an HTML fragment for embedding in a page template.
func RenderHTML(v View) (template.HTML, error) {
	var buf bytes.Buffer
	if err := Render(&buf, v); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
