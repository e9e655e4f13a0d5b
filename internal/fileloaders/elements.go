package fileloaders

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"steamchain/internal/platform"
)

const defaultJoinStr = "\n\n"

type elementsFunc func(content []byte) ([]string, error)

// elementLoader imports the text elements of a document, joined into one
// block with JoinStr or, when JoinStr is empty, one block per element.
type elementLoader struct {
	Client   Platform
	JoinStr  string
	elements elementsFunc
}

func (l *elementLoader) Load(ctx context.Context, path string, metadata map[string]any) ([]platform.File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	elements, err := l.elements(content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	texts := elements
	if l.JoinStr != "" {
		texts = []string{strings.Join(elements, l.JoinStr)}
	}
	f, err := createTextFile(ctx, l.Client, texts, FileTags(path, metadata))
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return []platform.File{*f}, nil
}

// MarkdownLoader imports the top-level elements of a markdown document.
type MarkdownLoader struct {
	elementLoader
}

func NewMarkdownLoader(client Platform) *MarkdownLoader {
	return &MarkdownLoader{elementLoader{Client: client, JoinStr: defaultJoinStr, elements: markdownElements}}
}

// HTMLLoader imports the headings, paragraphs, list items and other text
// elements of an HTML page.
type HTMLLoader struct {
	elementLoader
}

func NewHTMLLoader(client Platform) *HTMLLoader {
	return &HTMLLoader{elementLoader{Client: client, JoinStr: defaultJoinStr, elements: htmlElements}}
}

func markdownElements(content []byte) ([]string, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(content))
	var out []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		t, err := markdownText(n, content)
		if err != nil {
			return nil, err
		}
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func markdownText(root ast.Node, src []byte) (string, error) {
	var sb strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := n.(type) {
		case *ast.Text:
			if entering {
				sb.Write(v.Segment.Value(src))
				if v.SoftLineBreak() || v.HardLineBreak() {
					sb.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(v.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(v.URL(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		default:
			if !entering && n != root && n.Type() == ast.TypeBlock && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}
	return sb.String(), nil
}

const htmlTextElements = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, dt, dd, th, td, figcaption"

func htmlElements(content []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find(htmlTextElements).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(htmlTextElements).Length() > 0 {
			return
		}
		var t string
		if goquery.NodeName(s) == "pre" {
			t = strings.TrimSpace(s.Text())
		} else {
			t = strings.Join(strings.Fields(s.Text()), " ")
		}
		if t != "" {
			out = append(out, t)
		}
	})
	return out, nil
}
