package chunking

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// FlattenMarkdown renders markdown to plain paragraph text. Crawled pages
// are stored as markdown; flattening before chunking keeps markup out of the
// embedded text. Block boundaries become blank lines so the paragraph
// splitter sees the document's structure.
func FlattenMarkdown(source []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n.Kind() {
		case ast.KindText:
			if entering {
				t := n.(*ast.Text)
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
		case ast.KindHeading, ast.KindParagraph, ast.KindListItem, ast.KindBlockquote:
			if !entering {
				buf.WriteString("\n\n")
			}
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			if entering {
				writeLines(&buf, source, n)
				buf.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case ast.KindCodeSpan:
			if entering {
				for c := n.FirstChild(); c != nil; c = c.NextSibling() {
					if t, ok := c.(*ast.Text); ok {
						buf.Write(t.Segment.Value(source))
					}
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String())
}

func writeLines(buf *bytes.Buffer, source []byte, n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}
