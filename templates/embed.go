package templates

import (
	"embed"
	"html/template"
)

//go:embed *.html
var FS embed.FS

// LoadTemplates parses the setup page layout fragments.
func LoadTemplates() (*template.Template, error) {
	return template.ParseFS(FS, "*.html")
}
