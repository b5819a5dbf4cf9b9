package contract

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

//go:embed presets.md
var presetsMD []byte

// Preset is one example input from the catalog.
type Preset struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// LoadPresets parses the embedded catalog.
func LoadPresets() ([]Preset, error) {
	return ParsePresets(presetsMD)
}

// PresetsMarkdown returns the raw catalog document.
func PresetsMarkdown() []byte {
	return append([]byte(nil), presetsMD...)
}

// ParsePresets reads a markdown catalog where every level-2 heading is a
// label and the paragraphs under it, joined by newlines, are the text.
// Content before the first level-2 heading is ignored.
func ParsePresets(src []byte) ([]Preset, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var presets []Preset
	var current *Preset
	var body []string

	flush := func() error {
		if current == nil {
			return nil
		}
		current.Text = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Text == "" {
			return fmt.Errorf("preset %q has no text", current.Label)
		}
		presets = append(presets, *current)
		current, body = nil, nil
		return nil
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level != 2 {
				continue
			}
			if err := flush(); err != nil {
				return nil, err
			}
			label := lineText(node, src)
			if label == "" {
				return nil, fmt.Errorf("preset heading is empty")
			}
			current = &Preset{Label: label}
		case *ast.Paragraph:
			if current == nil {
				continue
			}
			body = append(body, lineText(node, src))
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(presets) == 0 {
		return nil, fmt.Errorf("preset catalog is empty")
	}
	return presets, nil
}

// lineText joins the raw source lines of a block node, one per line.
func lineText(n ast.Node, src []byte) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if s := string(bytes.TrimSpace(seg.Value(src))); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
