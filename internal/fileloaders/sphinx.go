package fileloaders

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yargevad/filepathx"
	"golang.org/x/net/html"

	"steamchain/internal/platform"
)

// SphinxLoader imports the sections of a built Sphinx site, one block per
// matched element, each tagged with a link back to the section anchor.
type SphinxLoader struct {
	Client Platform
	// Scheme prefixes the page path in provenance URLs, e.g.
	// "https://docs.example.com/en/latest/".
	Scheme string
	// Tag and Attrs select the content elements on each page.
	Tag   string
	Attrs map[string]string
	// UseTagID appends the element id to provenance URLs as a fragment.
	UseTagID       bool
	IgnoreFailures bool
	// Sanitize replaces characters the platform rejects in raw uploads.
	Sanitize bool
}

const defaultScheme = "https://"

// SphinxSite imports whole articles of pages built with the pydata theme.
func SphinxSite(client Platform, scheme string) *SphinxLoader {
	return &SphinxLoader{
		Client: client,
		Scheme: scheme,
		Tag:    "article",
		Attrs:  map[string]string{"class": "bd-article", "role": "main"},
	}
}

// SphinxSiteSection imports pages section by section, linking each block to
// its section header.
func SphinxSiteSection(client Platform, scheme string) *SphinxLoader {
	return &SphinxLoader{Client: client, Scheme: scheme, Tag: "section", UseTagID: true}
}

// ReadTheDocs imports whole articles using the Read the Docs main-content tag.
func ReadTheDocs(client Platform, scheme string) *SphinxLoader {
	return &SphinxLoader{Client: client, Scheme: scheme, Tag: "main", Attrs: map[string]string{"id": "main-content"}}
}

func (l *SphinxLoader) selector() string {
	keys := make([]string, 0, len(l.Attrs))
	for k := range l.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(l.Tag)
	for _, k := range keys {
		op := "="
		if k == "class" {
			op = "~="
		}
		fmt.Fprintf(&sb, "[%s%s%q]", k, op, l.Attrs[k])
	}
	return sb.String()
}

func (l *SphinxLoader) Load(ctx context.Context, root string, metadata map[string]any) ([]platform.File, error) {
	pages, err := filepathx.Glob(filepath.Join(root, "**", "*.html"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", root, err)
	}
	sort.Strings(pages)

	scheme := l.Scheme
	if scheme == "" {
		scheme = defaultScheme
	}
	sel := l.selector()
	var files []platform.File
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		fi, err := os.Stat(page)
		if err != nil {
			return files, err
		}
		if fi.IsDir() {
			continue
		}
		rel, err := filepath.Rel(root, page)
		if err != nil {
			return files, err
		}
		sections, err := pageSections(page, sel)
		if err != nil {
			return files, err
		}
		log.Printf("[fileloaders.SphinxLoader] loading %s (%d sections)", page, len(sections))
		for _, s := range sections {
			url := scheme + filepath.ToSlash(rel)
			if s.id != "" && l.UseTagID {
				url += "#" + s.id
			}
			text := s.text
			if l.Sanitize {
				text = sanitize(text)
			}
			f, err := createTextFile(ctx, l.Client, []string{text}, URLTags(url, metadata))
			if err != nil {
				if l.IgnoreFailures {
					log.Printf("[fileloaders.SphinxLoader] skipping %s: %v", url, err)
					continue
				}
				return files, fmt.Errorf("import %s: %w", url, err)
			}
			files = append(files, *f)
		}
	}
	return files, nil
}

type section struct {
	id   string
	text string
}

func pageSections(path, selector string) ([]section, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	doc, err := goquery.NewDocumentFromReader(fh)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var out []section
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		text := strippedText(s)
		if text == "" {
			return
		}
		id, _ := s.Attr("id")
		out = append(out, section{id: id, text: text})
	})
	return out, nil
}

// strippedText joins the trimmed, non-empty text nodes below s with spaces.
func strippedText(s *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func sanitize(s string) string {
	return strings.NewReplacer("$", "_", "%", "_").Replace(s)
}
