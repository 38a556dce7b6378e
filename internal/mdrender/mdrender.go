// Package mdrender turns Markdown into sanitized HTML fragments.
package mdrender

import (
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.UGCPolicy()

// ToHTML renders markdown with tables and fenced code, then strips anything
// outside the UGC policy. Links open in a new tab.
func ToHTML(source string) string {
	extensions := parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(source))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	return string(policy.SanitizeBytes(markdown.Render(doc, renderer)))
}
