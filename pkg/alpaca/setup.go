package alpaca

import (
	"fmt"
	"html/template"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ContentFunc writes HTML fragments into a setup page.
type ContentFunc func(s ContentSession)

// SetupPage describes one setup page: a title, extra style blocks and
// fragments written before the page body.
type SetupPage struct {
	Title      template.HTML
	Styles     []template.CSS
	Precontent []ContentFunc
}

// AddStyle appends a CSS block to the page head.
func (p *SetupPage) AddStyle(css string) {
	p.Styles = append(p.Styles, template.CSS(css))
}

// AddPrecontent registers a fragment writer that runs before the body.
func (p *SetupPage) AddPrecontent(fn ContentFunc) {
	p.Precontent = append(p.Precontent, fn)
}

// PageRenderer streams setup pages wrapped in the shared layout.
type PageRenderer struct {
	tmpl       *template.Template
	serverName string
	logger     log.FieldLogger
}

// NewPageRenderer uses the "page_start" and "page_end" templates of tmpl.
func NewPageRenderer(tmpl *template.Template, serverName string, logger log.FieldLogger) *PageRenderer {
	return &PageRenderer{
		tmpl:       tmpl,
		serverName: serverName,
		logger:     logger,
	}
}

// Render streams page to the exchange, calling body between the
// pre-content fragments and the page footer.
func (p *PageRenderer) Render(ex Exchange, page *SetupPage, body ContentFunc) {
	data := struct {
		Name   string
		Title  template.HTML
		Styles []template.CSS
	}{p.serverName, page.Title, page.Styles}

	s := ex.BeginContent(contentTypeHTML)

	if err := p.execute(s, "page_start", data); err != nil {
		p.logger.Errorf("Error rendering template: %v", err)
	}
	for _, fn := range page.Precontent {
		fn(s)
	}
	if body != nil {
		body(s)
	}
	if err := p.execute(s, "page_end", data); err != nil {
		p.logger.Errorf("Error rendering template: %v", err)
	}

	if err := s.End(); err != nil {
		p.logger.Debugf("Error writing page: %v", err)
	}
}

func (p *PageRenderer) execute(s ContentSession, name string, data any) error {
	var sb strings.Builder
	if err := p.tmpl.ExecuteTemplate(&sb, name, data); err != nil {
		return fmt.Errorf("template %s: %w", name, err)
	}
	s.Append(sb.String())
	return nil
}

// escape is shorthand for writing user-provided text into a fragment.
func escape(s string) string {
	return template.HTMLEscapeString(s)
}
