// Package memory persists conversations as platform files, one block per
// entry, ordered by the entries' timestamp tags.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"steamchain/internal/platform"
)

// Platform is the part of the platform client conversation storage needs.
type Platform interface {
	GetFileByHandle(ctx context.Context, handle string) (*platform.File, error)
	CreateFile(ctx context.Context, req platform.FileRequest) (*platform.File, error)
	CreateBlock(ctx context.Context, fileID, text string, tags []platform.Tag) (*platform.Block, error)
	DeleteFile(ctx context.Context, id string) error
}

var now = time.Now

type conversationFile struct {
	client Platform
	handle string
}

// get returns nil when the conversation has not been started.
func (c conversationFile) get(ctx context.Context) (*platform.File, error) {
	f, err := c.client.GetFileByHandle(ctx, c.handle)
	if errors.Is(err, platform.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", c.handle, err)
	}
	return f, nil
}

func (c conversationFile) getOrCreate(ctx context.Context) (*platform.File, error) {
	f, err := c.get(ctx)
	if err != nil || f != nil {
		return f, err
	}
	f, err = c.client.CreateFile(ctx, platform.FileRequest{Handle: c.handle})
	if err != nil {
		return nil, fmt.Errorf("create conversation %s: %w", c.handle, err)
	}
	return f, nil
}

func (c conversationFile) append(ctx context.Context, text string) error {
	f, err := c.getOrCreate(ctx)
	if err != nil {
		return err
	}
	tag := platform.Tag{
		Kind:  platform.KindTimestamp,
		Value: map[string]any{platform.ValueTimestamp: platform.Timestamp(now())},
	}
	if _, err := c.client.CreateBlock(ctx, f.ID, text, []platform.Tag{tag}); err != nil {
		return fmt.Errorf("append to conversation %s: %w", c.handle, err)
	}
	return nil
}

// entries returns the block texts in timestamp order.
func (c conversationFile) entries(ctx context.Context) ([]string, error) {
	f, err := c.get(ctx)
	if err != nil || f == nil {
		return nil, err
	}
	blocks := append([]platform.Block(nil), f.Blocks...)
	sort.SliceStable(blocks, func(i, j int) bool {
		return blockTimestamp(blocks[i]) < blockTimestamp(blocks[j])
	})
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Text
	}
	return out, nil
}

func (c conversationFile) delete(ctx context.Context) error {
	f, err := c.get(ctx)
	if err != nil || f == nil {
		return err
	}
	return c.client.DeleteFile(ctx, f.ID)
}

func blockTimestamp(b platform.Block) string {
	for _, t := range b.Tags {
		if t.Kind == platform.KindTimestamp {
			s, _ := t.Value[platform.ValueTimestamp].(string)
			return s
		}
	}
	return ""
}
