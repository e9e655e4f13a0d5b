package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"steamchain/internal/fileloaders"
	"steamchain/internal/platform"
	"steamchain/internal/renderer"
	"steamchain/internal/storage"
)

// LoadCmd imports a source into the workspace and records the created files
// in the local ledger.
type LoadCmd struct {
	Source  string            `arg:"" help:"File, directory, site root, owner/repo or video URL"`
	Kind    string            `short:"k" default:"auto" enum:"auto,text,markdown,html,dir,sphinx,github,youtube" help:"Loader to use (${enum})"`
	Glob    string            `default:"**/*" help:"File pattern for dir and github loaders"`
	Ref     string            `default:"main" help:"Git ref for the github loader"`
	Preset  string            `default:"site" enum:"site,section,readthedocs" help:"Sphinx layout (${enum})"`
	Scheme  string            `default:"https://" help:"URL scheme for sphinx page links"`
	Meta    map[string]string `short:"m" help:"Metadata tags to attach (key=value)"`
	Replace bool              `help:"Delete the files of the previous import of this source first"`
	Strict  bool              `help:"Fail on the first file that cannot be imported"`
}

// kind guesses the loader from the source when --kind is auto.
func (c *LoadCmd) kind() string {
	if c.Kind != "auto" {
		return c.Kind
	}
	src := strings.ToLower(c.Source)
	switch {
	case strings.Contains(src, "youtube.com/") || strings.Contains(src, "youtu.be/"):
		return "youtube"
	case strings.HasSuffix(src, ".md") || strings.HasSuffix(src, ".markdown"):
		return "markdown"
	case strings.HasSuffix(src, ".html") || strings.HasSuffix(src, ".htm"):
		return "html"
	case filepath.Ext(src) == "":
		return "dir"
	default:
		return "text"
	}
}

func (c *LoadCmd) metadata() map[string]any {
	if len(c.Meta) == 0 {
		return nil
	}
	m := make(map[string]any, len(c.Meta))
	for k, v := range c.Meta {
		m[k] = v
	}
	return m
}

func (c *LoadCmd) load(ctx context.Context, client *platform.Client, kind string) ([]platform.File, error) {
	meta := c.metadata()
	switch kind {
	case "text":
		return (&fileloaders.TextLoader{Client: client}).Load(ctx, c.Source, meta)
	case "markdown":
		return fileloaders.NewMarkdownLoader(client).Load(ctx, c.Source, meta)
	case "html":
		return fileloaders.NewHTMLLoader(client).Load(ctx, c.Source, meta)
	case "dir":
		l := fileloaders.NewDirectoryLoader(&fileloaders.TextLoader{Client: client})
		l.Glob = c.Glob
		l.IgnoreFailures = !c.Strict
		return l.Load(ctx, c.Source, meta)
	case "sphinx":
		var l *fileloaders.SphinxLoader
		switch c.Preset {
		case "section":
			l = fileloaders.SphinxSiteSection(client, c.Scheme)
		case "readthedocs":
			l = fileloaders.ReadTheDocs(client, c.Scheme)
		default:
			l = fileloaders.SphinxSite(client, c.Scheme)
		}
		l.IgnoreFailures = !c.Strict
		return l.Load(ctx, c.Source, meta)
	case "github":
		l := fileloaders.NewGitHubLoader(client)
		l.Glob = c.Glob
		l.IgnoreFailures = !c.Strict
		return l.Load(ctx, c.Source, c.Ref, meta)
	case "youtube":
		return fileloaders.NewYouTubeLoader(client).Load(ctx, c.Source, meta)
	}
	return nil, fmt.Errorf("unknown loader kind: %s", kind)
}

// forget deletes the files recorded for the previous import of the source.
func (c *LoadCmd) forget(ctx context.Context, client *platform.Client) (int, error) {
	records, err := storage.LoadImports(ctx, c.Source)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		if err := client.DeleteFile(ctx, r.FileID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			return 0, fmt.Errorf("delete %s: %w", r.FileID, err)
		}
	}
	return len(records), storage.DeleteImports(ctx, c.Source)
}

// Run executes the load command.
func (c *LoadCmd) Run(cli *CLI) error {
	e, err := cli.env()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	if c.Replace {
		err = stage("Removing previous import", func() (string, error) {
			n, err := c.forget(ctx, e.client)
			return fmt.Sprintf("%d files", n), err
		})
		if err != nil {
			return err
		}
	}

	kind := c.kind()
	var files []platform.File
	err = stage("Importing with the "+kind+" loader", func() (string, error) {
		files, err = c.load(ctx, e.client, kind)
		return fmt.Sprintf("%d files", len(files)), err
	})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	if err := storage.RecordImport(ctx, c.Source, kind, ids); err != nil {
		e.log.Warn("could not record import", "source", c.Source, "error", err)
	}
	return cli.print(renderer.Files(c.Source, files))
}
