package fileloaders

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/yargevad/filepathx"

	"steamchain/internal/platform"
)

const DefaultGlob = "**/*"

// DirectoryLoader imports every matching file below a directory with a
// per-file loader.
type DirectoryLoader struct {
	FileLoader     Loader
	Glob           string
	SkipDotFiles   bool
	SkipImages     bool
	IgnoreFailures bool
}

func NewDirectoryLoader(fileLoader Loader) *DirectoryLoader {
	return &DirectoryLoader{
		FileLoader:   fileLoader,
		Glob:         DefaultGlob,
		SkipDotFiles: true,
		SkipImages:   true,
	}
}

func (l *DirectoryLoader) Load(ctx context.Context, dir string, metadata map[string]any) ([]platform.File, error) {
	pattern := l.Glob
	if pattern == "" {
		pattern = DefaultGlob
	}
	matches, err := filepathx.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	var files []platform.File
	for _, p := range matches {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if l.skip(dir, p) {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		loaded, err := l.FileLoader.Load(ctx, abs, metadata)
		if err != nil {
			if l.IgnoreFailures {
				log.Printf("[fileloaders.DirectoryLoader] skipping %s: %v", p, err)
				continue
			}
			return files, err
		}
		files = append(files, loaded...)
	}
	return files, nil
}

func (l *DirectoryLoader) skip(dir, p string) bool {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return true
	}
	if l.SkipDotFiles {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = p
		}
		for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
			if strings.HasPrefix(part, ".") {
				return true
			}
		}
	}
	if l.SkipImages {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			return true
		}
		if m, err := mimetype.DetectFile(p); err == nil && strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}
