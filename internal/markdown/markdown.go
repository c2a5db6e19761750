// Package markdown turns markdown input into the plain prose the pipeline
// translates.
package markdown

import (
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// ToPlainText returns the readable text of md. Block elements are separated
// by blank lines; code blocks, raw HTML and images are dropped. Inline code
// keeps its backticks.
func ToPlainText(md []byte) string {
	doc := parser.NewWithExtensions(parser.CommonExtensions).Parse(md)

	var b strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.CodeBlock, *ast.HTMLBlock, *ast.HTMLSpan, *ast.Image:
			return ast.SkipChildren
		case *ast.Text:
			if entering {
				b.Write(n.Literal)
			}
		case *ast.Code:
			// Backticks survive so the span is kept out of translation.
			if entering {
				b.WriteByte('`')
				b.Write(n.Literal)
				b.WriteByte('`')
			}
		case *ast.Softbreak, *ast.Hardbreak:
			if entering {
				b.WriteByte(' ')
			}
		case *ast.Paragraph, *ast.Heading, *ast.TableCell:
			if !entering {
				b.WriteString("\n\n")
			}
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(b.String())
}

// IsMarkdownPath reports whether a file name looks like markdown.
func IsMarkdownPath(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}
