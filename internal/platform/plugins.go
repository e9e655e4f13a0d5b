package platform

import (
	"context"
	"fmt"
)

// PluginRequest selects or creates a plugin instance.
type PluginRequest struct {
	PluginHandle   string         `json:"pluginHandle"`
	InstanceHandle string         `json:"handle,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
	FetchIfExists  bool           `json:"fetchIfExists"`
}

// UsePlugin creates a plugin instance, or returns the existing one with the
// same handle when FetchIfExists is set.
func (c *Client) UsePlugin(ctx context.Context, req PluginRequest) (*PluginInstance, error) {
	var inst PluginInstance
	if err := c.call(ctx, "plugin/instance/create", req, &inst); err != nil {
		return nil, fmt.Errorf("use plugin %s: %w", req.PluginHandle, err)
	}
	return &inst, nil
}

// TagRequest names the content a tagger plugin should annotate: an existing
// file or a raw text.
type TagRequest struct {
	FileID string `json:"fileId,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Tag runs a tagger plugin instance. The finished task's output decodes into
// TagOutput.
func (c *Client) Tag(ctx context.Context, inst *PluginInstance, req TagRequest) (*Task, error) {
	payload := map[string]any{"pluginInstance": inst.Handle}
	if req.FileID != "" {
		payload["file"] = map[string]any{"id": req.FileID}
	}
	if req.Text != "" {
		payload["text"] = req.Text
	}
	task, err := c.callTask(ctx, "plugin/instance/tag", payload)
	if err != nil {
		return nil, fmt.Errorf("tag with %s: %w", inst.Handle, err)
	}
	return task, nil
}

// GenerateRequest is the input of a generator plugin instance.
type GenerateRequest struct {
	Text        string         `json:"text,omitempty"`
	InputFileID string         `json:"inputFileId,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
	CleanOutput bool           `json:"cleanOutput"`
}

// Generate runs a generator plugin instance. The finished task's output decodes
// into GenerateOutput.
func (c *Client) Generate(ctx context.Context, inst *PluginInstance, req GenerateRequest) (*Task, error) {
	payload := struct {
		PluginInstance string `json:"pluginInstance"`
		GenerateRequest
	}{inst.Handle, req}
	task, err := c.callTask(ctx, "plugin/instance/generate", payload)
	if err != nil {
		return nil, fmt.Errorf("generate with %s: %w", inst.Handle, err)
	}
	return task, nil
}
