// Package loaders turns persisted platform files into langchaingo documents.
package loaders

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"steamchain/internal/platform"
)

var ErrQueryAndFiles = errors.New("'query' and 'files' are mutually exclusive")

// FileQuerier finds files by tag filter query.
type FileQuerier interface {
	QueryFiles(ctx context.Context, tagFilterQuery string) ([]platform.File, error)
}

type Options struct {
	// Query selects files by tag filter. It may not be combined with Files.
	Query string
	Files []platform.File
	// JoinStr joins block texts when CollapseBlocks is set.
	JoinStr        string
	CollapseBlocks bool
}

type Option func(*Options)

func WithQuery(q string) Option {
	return func(o *Options) { o.Query = q }
}

func WithFiles(files ...platform.File) Option {
	return func(o *Options) { o.Files = append(o.Files, files...) }
}

func WithJoinStr(s string) Option {
	return func(o *Options) { o.JoinStr = s }
}

// WithCollapseBlocks controls whether a file becomes one document or one
// document per block.
func WithCollapseBlocks(v bool) Option {
	return func(o *Options) { o.CollapseBlocks = v }
}

// Platform loads documents from platform files. With neither a query nor
// files it loads nothing.
type Platform struct {
	client FileQuerier
	opts   Options
}

var _ documentloaders.Loader = (*Platform)(nil)

func NewPlatform(client FileQuerier, opts ...Option) (*Platform, error) {
	o := Options{JoinStr: "\n\n", CollapseBlocks: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Query != "" && len(o.Files) > 0 {
		return nil, ErrQueryAndFiles
	}
	return &Platform{client: client, opts: o}, nil
}

func (p *Platform) Load(ctx context.Context) ([]schema.Document, error) {
	source := p.opts.Files
	if p.opts.Query != "" {
		files, err := p.client.QueryFiles(ctx, p.opts.Query)
		if err != nil {
			return nil, err
		}
		source = files
	}

	var docs []schema.Document
	for _, f := range source {
		if p.opts.CollapseBlocks {
			texts := make([]string, len(f.Blocks))
			for i, b := range f.Blocks {
				texts[i] = b.Text
			}
			docs = append(docs, schema.Document{PageContent: strings.Join(texts, p.opts.JoinStr), Metadata: fileMetadata(f)})
			continue
		}
		for _, b := range f.Blocks {
			docs = append(docs, schema.Document{PageContent: b.Text, Metadata: fileMetadata(f)})
		}
	}
	return docs, nil
}

func (p *Platform) LoadAndSplit(ctx context.Context, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	docs, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return textsplitter.SplitDocuments(splitter, docs)
}

func fileMetadata(f platform.File) map[string]any {
	md := map[string]any{"source": f.Handle}
	for _, t := range f.Tags {
		if t.Kind == platform.KindProvenance {
			if v := t.StringValue(); v != "" {
				md["provenance"] = v
			}
			break
		}
	}
	return md
}
