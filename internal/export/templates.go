package export

import (
	"bytes"
	"embed"
	"html/template"
)

// SafeHTML marks rendered note bodies as trusted. Note bodies are produced by
// RichTextToHTML, which escapes every text node.
func SafeHTML(s string) template.HTML {
	return template.HTML(s)
}

//go:embed templates/*.html
var templateFS embed.FS

var levelLabels = map[string]string{
	"BEGINNER":     "débutant",
	"INTERMEDIATE": "intermédiaire",
	"ADVANCED":     "avancé",
	"FLUENT":       "courant",
	"NATIVE":       "langue maternelle",
}

var dossierTemplate = template.Must(template.New("dossier.html").Funcs(template.FuncMap{
	"formatDate": formatDate,
	"safeHTML":   SafeHTML,
	"levelLabel": func(level string) string {
		if label, ok := levelLabels[level]; ok {
			return label
		}
		return level
	},
}).ParseFS(templateFS, "templates/dossier.html"))

// RenderDossierHTML renders the dossier template with provided data
func RenderDossierHTML(data Dossier) (string, error) {
	var buf bytes.Buffer
	if err := dossierTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
