package fileloaders

import (
	"context"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"steamchain/internal/platform"
)

// TextLoader imports a text file as a single block.
type TextLoader struct {
	Client Platform
}

func (l *TextLoader) Load(ctx context.Context, path string, metadata map[string]any) ([]platform.File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !isText(content) {
		return nil, fmt.Errorf("%s is not a text file (%s)", path, mimetype.Detect(content))
	}
	f, err := createTextFile(ctx, l.Client, []string{string(content)}, FileTags(path, metadata))
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return []platform.File{*f}, nil
}

// isText reports whether content is plain text or a text-based format.
func isText(content []byte) bool {
	if len(content) == 0 {
		return true
	}
	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
