package markup

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const defaultWidth = 80

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	codeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	linkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// TerminalRenderer renders markdown as styled, word wrapped terminal text.
type TerminalRenderer struct {
	width int
}

func NewTerminalRenderer(width int) *TerminalRenderer {
	if width <= 0 {
		width = defaultWidth
	}
	return &TerminalRenderer{width: width}
}

func (r *TerminalRenderer) Render(input string) (string, error) {
	if input == "" {
		return "", nil
	}
	source := []byte(input)
	document := markdown().Parser().Parse(text.NewReader(source))

	w := &terminalWriter{source: source, width: r.width}
	if err := ast.Walk(document, w.walk); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.TrimRight(w.out.String(), "\n"), nil
}

type terminalWriter struct {
	source []byte
	width  int

	out    strings.Builder
	inline strings.Builder

	depth  int // list and quote nesting
	lists  []int
	quoted int

	bold, italic, strike int
}

func (w *terminalWriter) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		if !entering {
			w.flushBlock(w.prefix())
			if _, tight := node.(*ast.TextBlock); !tight {
				w.out.WriteString("\n")
			}
		}

	case *ast.Heading:
		if entering {
			w.inline.Reset()
		} else {
			content := w.inline.String()
			w.inline.Reset()
			style := headingStyle
			if n.Level > 2 {
				style = style.UnsetForeground()
			}
			w.out.WriteString(style.Render(content) + "\n\n")
		}

	case *ast.FencedCodeBlock:
		if entering {
			w.writeCode(n.Lines(), string(n.Language(w.source)))
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			w.writeCode(n.Lines(), "")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Blockquote:
		if entering {
			w.quoted++
		} else {
			w.quoted--
		}

	case *ast.List:
		if entering {
			start := 0
			if n.IsOrdered() {
				start = n.Start
			}
			w.lists = append(w.lists, start)
		} else {
			w.lists = w.lists[:len(w.lists)-1]
			if len(w.lists) == 0 {
				w.out.WriteString("\n")
			}
		}

	case *ast.ListItem:
		if entering {
			top := len(w.lists) - 1
			bullet := "• "
			if w.lists[top] > 0 {
				bullet = fmt.Sprintf("%d. ", w.lists[top])
				w.lists[top]++
			}
			w.out.WriteString(strings.Repeat("  ", top) + bullet)
			w.depth++
		} else {
			w.depth--
		}

	case *ast.ThematicBreak:
		if entering {
			w.out.WriteString(faintStyle.Render(strings.Repeat("─", w.width)) + "\n\n")
		}

	case *ast.Text:
		if entering {
			w.inline.WriteString(w.styled(string(n.Segment.Value(w.source))))
			if n.HardLineBreak() {
				w.inline.WriteString("\n")
			} else if n.SoftLineBreak() {
				w.inline.WriteString(" ")
			}
		}

	case *ast.String:
		if entering {
			w.inline.WriteString(w.styled(string(n.Value)))
		}

	case *ast.Emphasis:
		delta := 1
		if !entering {
			delta = -1
		}
		if n.Level >= 2 {
			w.bold += delta
		} else {
			w.italic += delta
		}

	case *extast.Strikethrough:
		if entering {
			w.strike++
		} else {
			w.strike--
		}

	case *ast.CodeSpan:
		if entering {
			var code strings.Builder
			for child := n.FirstChild(); child != nil; child = child.NextSibling() {
				if t, ok := child.(*ast.Text); ok {
					code.Write(t.Segment.Value(w.source))
				}
			}
			w.inline.WriteString(codeStyle.Render(code.String()))
			return ast.WalkSkipChildren, nil
		}

	case *ast.Link:
		if !entering {
			w.inline.WriteString(" " + linkStyle.Render("("+string(n.Destination)+")"))
		}

	case *ast.AutoLink:
		if entering {
			w.inline.WriteString(linkStyle.Render(string(n.URL(w.source))))
		}

	case *ast.Image:
		if entering {
			w.inline.WriteString(faintStyle.Render("[image: " + string(n.Destination) + "]"))
			return ast.WalkSkipChildren, nil
		}

	case *ast.RawHTML, *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

func (w *terminalWriter) styled(s string) string {
	if w.bold == 0 && w.italic == 0 && w.strike == 0 {
		return s
	}
	return lipgloss.NewStyle().
		Bold(w.bold > 0).
		Italic(w.italic > 0).
		Strikethrough(w.strike > 0).
		Render(s)
}

func (w *terminalWriter) prefix() string {
	return strings.Repeat("│ ", w.quoted)
}

func (w *terminalWriter) contentWidth() int {
	width := w.width - 2*w.depth - 2*w.quoted
	if width < 10 {
		width = 10
	}
	return width
}

// flushBlock wraps the collected inline text. Continuation lines of list
// items are indented to line up under the bullet text.
func (w *terminalWriter) flushBlock(prefix string) {
	content := w.inline.String()
	w.inline.Reset()
	if content == "" {
		return
	}

	wrapped := wordwrap.String(content, w.contentWidth())
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		if i > 0 && w.depth > 0 {
			line = indent.String(line, uint(2*w.depth))
		}
		w.out.WriteString(prefix + line + "\n")
	}
}

func (w *terminalWriter) writeCode(lines *text.Segments, language string) {
	var code strings.Builder
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		code.Write(segment.Value(w.source))
	}

	highlighted := codeStyle.Render(strings.TrimRight(code.String(), "\n"))
	if language != "" {
		var buf strings.Builder
		if err := quick.Highlight(&buf, code.String(), language, "terminal256", "monokai"); err == nil {
			highlighted = strings.TrimRight(buf.String(), "\n")
		}
	}
	w.out.WriteString(indent.String(highlighted, 2) + "\n\n")
}
