package fileloaders

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"steamchain/internal/platform"
)

// CloneFunc checks out ref of the repository at url into dir.
type CloneFunc func(ctx context.Context, url, ref, dir string) error

// GitHubLoader imports the text files of a GitHub repository. Imported files
// point at the file on github.com rather than the local checkout.
type GitHubLoader struct {
	Client         Platform
	Glob           string
	IgnoreFailures bool
	Clone          CloneFunc
}

func NewGitHubLoader(client Platform) *GitHubLoader {
	return &GitHubLoader{Client: client, Glob: DefaultGlob, Clone: gitClone}
}

// Load imports repo ("owner/name") at ref.
func (l *GitHubLoader) Load(ctx context.Context, repo, ref string, metadata map[string]any) ([]platform.File, error) {
	dir, err := os.MkdirTemp("", "steamchain-github-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	clone := l.Clone
	if clone == nil {
		clone = gitClone
	}
	if err := clone(ctx, "https://github.com/"+repo+".git", ref, dir); err != nil {
		return nil, err
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		root = dir
	}

	dl := NewDirectoryLoader(&TextLoader{Client: l.Client})
	dl.Glob = l.Glob
	dl.IgnoreFailures = l.IgnoreFailures
	files, err := dl.Load(ctx, root, metadata)
	if err != nil {
		return nil, err
	}

	for i := range files {
		if err := l.relink(ctx, &files[i], root, repo, ref); err != nil {
			return nil, err
		}
	}
	log.Printf("[fileloaders.GitHubLoader] imported %d files from %s@%s", len(files), repo, ref)
	return files, nil
}

// relink replaces the local file provenance tags of f with blob URLs.
func (l *GitHubLoader) relink(ctx context.Context, f *platform.File, root, repo, ref string) error {
	tags := f.Tags[:0:0]
	for _, t := range f.Tags {
		if t.Kind != platform.KindProvenance || t.Name != platform.ProvenanceFile {
			tags = append(tags, t)
			continue
		}
		rel, err := filepath.Rel(root, t.StringValue())
		if err != nil {
			return err
		}
		url := fmt.Sprintf("https://github.com/%s/blob/%s/%s", repo, ref, filepath.ToSlash(rel))
		created, err := l.Client.CreateTag(ctx, platform.Tag{
			FileID: f.ID,
			Kind:   platform.KindProvenance,
			Name:   platform.ProvenanceURL,
			Value:  map[string]any{platform.ValueString: url},
		})
		if err != nil {
			return fmt.Errorf("tag file %s: %w", f.ID, err)
		}
		if err := l.Client.DeleteTag(ctx, t.ID); err != nil {
			return err
		}
		tags = append(tags, *created)
	}
	f.Tags = tags
	return nil
}

func gitClone(ctx context.Context, url, ref, dir string) error {
	if err := runGit(ctx, "", "clone", "--quiet", url, dir); err != nil {
		return err
	}
	return runGit(ctx, dir, "checkout", "--quiet", ref)
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
