package platform

import (
	"context"
	"fmt"
)

// FileRequest describes a file to create.
type FileRequest struct {
	Handle   string  `json:"handle,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
	Blocks   []Block `json:"blocks"`
	Tags     []Tag   `json:"tags,omitempty"`
}

func (c *Client) CreateFile(ctx context.Context, req FileRequest) (*File, error) {
	if req.Blocks == nil {
		req.Blocks = []Block{}
	}
	var f File
	if err := c.call(ctx, "file/create", req, &f); err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return &f, nil
}

// GetFile fetches a file, with its blocks and tags, by id.
func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	return c.getFile(ctx, map[string]any{"id": id})
}

// GetFileByHandle fetches a file by its workspace-unique handle.
func (c *Client) GetFileByHandle(ctx context.Context, handle string) (*File, error) {
	return c.getFile(ctx, map[string]any{"handle": handle})
}

func (c *Client) getFile(ctx context.Context, payload map[string]any) (*File, error) {
	var f File
	if err := c.call(ctx, "file/get", payload, &f); err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &f, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if err := c.call(ctx, "file/delete", map[string]any{"id": id}, nil); err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	return nil
}

// QueryFiles returns the files matching a tag filter query.
func (c *Client) QueryFiles(ctx context.Context, tagFilterQuery string) ([]File, error) {
	var out struct {
		Files []File `json:"files"`
	}
	if err := c.call(ctx, "file/query", map[string]any{"tagFilterQuery": tagFilterQuery}, &out); err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	return out.Files, nil
}

// ImportFile asks an importer plugin instance to create a file from url.
func (c *Client) ImportFile(ctx context.Context, pluginInstance, url string) (*Task, error) {
	task, err := c.callTask(ctx, "file/import", map[string]any{
		"pluginInstance": pluginInstance,
		"url":            url,
	})
	if err != nil {
		return nil, fmt.Errorf("import file: %w", err)
	}
	return task, nil
}

func (c *Client) CreateBlock(ctx context.Context, fileID, text string, tags []Tag) (*Block, error) {
	var b Block
	payload := map[string]any{"fileId": fileID, "text": text, "tags": tags}
	if err := c.call(ctx, "block/create", payload, &b); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	return &b, nil
}

func (c *Client) CreateTag(ctx context.Context, tag Tag) (*Tag, error) {
	var out Tag
	if err := c.call(ctx, "tag/create", tag, &out); err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &out, nil
}

func (c *Client) DeleteTag(ctx context.Context, id string) error {
	if err := c.call(ctx, "tag/delete", map[string]any{"id": id}, nil); err != nil {
		return fmt.Errorf("delete tag %s: %w", id, err)
	}
	return nil
}

// QueryTags returns the tags matching a tag filter query.
func (c *Client) QueryTags(ctx context.Context, tagFilterQuery string) ([]Tag, error) {
	var out struct {
		Tags []Tag `json:"tags"`
	}
	if err := c.call(ctx, "tag/query", map[string]any{"tagFilterQuery": tagFilterQuery}, &out); err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	return out.Tags, nil
}
