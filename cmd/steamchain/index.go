package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"steamchain/internal/config"
	"steamchain/internal/loaders"
	"steamchain/internal/platform"
	"steamchain/internal/renderer"
	"steamchain/internal/splitter"
	"steamchain/internal/vectorstore"
)

// IndexCmd groups the embedding index commands.
type IndexCmd struct {
	Add    IndexAddCmd    `cmd:"" help:"Embed local files or workspace files into the index"`
	Search IndexSearchCmd `cmd:"" help:"Find the documents closest to a query"`
}

// IndexAddCmd embeds documents into the configured index.
type IndexAddCmd struct {
	Files     []string `arg:"" optional:"" type:"existingfile" help:"Local files to embed"`
	Query     string   `short:"q" help:"Also embed workspace files matching this tag query"`
	ChunkSize int      `default:"1000" help:"Characters per chunk for non-Python files"`
}

// IndexSearchCmd runs a similarity search.
type IndexSearchCmd struct {
	Query []string `arg:"" help:"Search text"`
	K     int      `short:"k" default:"4" help:"Number of results"`
}

// openIndex creates the configured index on first use and reopens it after.
func openIndex(ctx context.Context, client *platform.Client, cfg config.IndexConfig) (*vectorstore.Store, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("no index name: set name under [index] in the config")
	}
	return vectorstore.New(ctx, client, cfg.EmbeddingModel, cfg.Name, vectorstore.WithFetchIfExists(true))
}

// chunker returns the splitter for a file: definition chunks for Python,
// recursive character chunks otherwise.
func chunker(path string, chunkSize int) textsplitter.TextSplitter {
	if strings.EqualFold(filepath.Ext(path), ".py") {
		return splitter.NewPython()
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkSize/10),
	)
}

func localDocuments(paths []string, chunkSize int) ([]schema.Document, error) {
	var docs []schema.Document
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		chunks, err := textsplitter.CreateDocuments(chunker(path, chunkSize),
			[]string{string(b)}, []map[string]any{{"source": path}})
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", path, err)
		}
		docs = append(docs, chunks...)
	}
	return docs, nil
}

// Run executes the index add command.
func (c *IndexAddCmd) Run(cli *CLI) error {
	if len(c.Files) == 0 && c.Query == "" {
		return fmt.Errorf("nothing to add: pass files or --query")
	}
	e, err := cli.env()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	var docs []schema.Document
	err = stage("Reading documents", func() (string, error) {
		if docs, err = localDocuments(c.Files, c.ChunkSize); err != nil {
			return "", err
		}
		if c.Query != "" {
			loader, err := loaders.NewPlatform(e.client, loaders.WithQuery(c.Query))
			if err != nil {
				return "", err
			}
			remote, err := loader.LoadAndSplit(ctx, textsplitter.NewRecursiveCharacter(textsplitter.WithChunkSize(c.ChunkSize)))
			if err != nil {
				return "", err
			}
			docs = append(docs, remote...)
		}
		return fmt.Sprintf("%d chunks", len(docs)), nil
	})
	if err != nil {
		return err
	}

	store, err := openIndex(ctx, e.client, e.cfg.Index)
	if err != nil {
		return err
	}
	err = stage("Embedding", func() (string, error) {
		ids, err := store.AddDocuments(ctx, docs)
		return fmt.Sprintf("%d items", len(ids)), err
	})
	if err != nil {
		return err
	}
	return cli.print(fmt.Sprintf("Added %d chunks to index `%s`.\n", len(docs), store.IndexName()))
}

// Run executes the index search command.
func (c *IndexSearchCmd) Run(cli *CLI) error {
	e, err := cli.env()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	store, err := openIndex(ctx, e.client, e.cfg.Index)
	if err != nil {
		return err
	}
	query := strings.Join(c.Query, " ")
	var docs []schema.Document
	err = stage("Searching", func() (string, error) {
		docs, err = store.SimilaritySearch(ctx, query, c.K)
		return fmt.Sprintf("%d results", len(docs)), err
	})
	if err != nil {
		return err
	}
	return cli.print(renderer.Documents(query, docs))
}
