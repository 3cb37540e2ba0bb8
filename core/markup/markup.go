// Package markup turns finished assistant replies into their display form.
package markup

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts reply text into display text. A failed render leaves the
// caller to fall back to the raw text.
type Renderer interface {
	Render(text string) (string, error)
}

type RendererFunc func(text string) (string, error)

func (f RendererFunc) Render(text string) (string, error) { return f(text) }

// Raw returns replies unchanged.
var Raw Renderer = RendererFunc(func(text string) (string, error) { return text, nil })

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInstance
}

// HTMLRenderer renders GitHub flavoured markdown to HTML.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown().Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// ByName returns the renderer for a configured markup mode.
func ByName(name string, width int) (Renderer, error) {
	switch name {
	case "", "terminal":
		return NewTerminalRenderer(width), nil
	case "html":
		return HTMLRenderer{}, nil
	case "raw":
		return Raw, nil
	}
	return nil, fmt.Errorf("unknown markup mode %q", name)
}
