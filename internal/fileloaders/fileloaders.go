// Package fileloaders imports local files, websites and remote sources into
// platform files tagged with their provenance and import time.
package fileloaders

import (
	"context"
	"fmt"
	"time"

	"steamchain/internal/platform"
)

// Platform is the part of the platform client the loaders need.
type Platform interface {
	CreateFile(ctx context.Context, req platform.FileRequest) (*platform.File, error)
	GetFile(ctx context.Context, id string) (*platform.File, error)
	CreateTag(ctx context.Context, tag platform.Tag) (*platform.Tag, error)
	DeleteTag(ctx context.Context, id string) error
}

// Loader imports the content at path into platform files.
type Loader interface {
	Load(ctx context.Context, path string, metadata map[string]any) ([]platform.File, error)
}

var now = time.Now

func sourceTags(provenance, source string, metadata map[string]any) []platform.Tag {
	tags := []platform.Tag{
		{
			Kind:  platform.KindTimestamp,
			Name:  "timestamp",
			Value: map[string]any{platform.ValueTimestamp: platform.Timestamp(now())},
		},
		{
			Kind:  platform.KindProvenance,
			Name:  provenance,
			Value: map[string]any{platform.ValueString: source},
		},
	}
	if len(metadata) > 0 {
		tags = append(tags, platform.Tag{Kind: platform.KindMetadata, Name: platform.KindMetadata, Value: metadata})
	}
	return tags
}

// FileTags are the tags of a file imported from a local path.
func FileTags(path string, metadata map[string]any) []platform.Tag {
	return sourceTags(platform.ProvenanceFile, path, metadata)
}

// URLTags are the tags of a file imported from a URL.
func URLTags(url string, metadata map[string]any) []platform.Tag {
	return sourceTags(platform.ProvenanceURL, url, metadata)
}

// AddURLTags attaches URL tags to an existing file.
func AddURLTags(ctx context.Context, client Platform, fileID, url string, metadata map[string]any) error {
	for _, tag := range URLTags(url, metadata) {
		tag.FileID = fileID
		if _, err := client.CreateTag(ctx, tag); err != nil {
			return fmt.Errorf("tag file %s: %w", fileID, err)
		}
	}
	return nil
}

func createTextFile(ctx context.Context, client Platform, texts []string, tags []platform.Tag) (*platform.File, error) {
	blocks := make([]platform.Block, len(texts))
	for i, t := range texts {
		blocks[i] = platform.Block{Text: t}
	}
	return client.CreateFile(ctx, platform.FileRequest{
		MimeType: platform.MimeText,
		Blocks:   blocks,
		Tags:     tags,
	})
}
