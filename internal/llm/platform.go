// Package llm wraps the platform's completion plugin as langchaingo language models.
package llm

import (
	"context"
	"errors"
	"unicode/utf8"

	"steamchain/internal/platform"
)

// PluginGPT3 is the completion plugin both language models run on.
const PluginGPT3 = "gpt-3"

var (
	ErrStreamingUnsupported = errors.New("streaming is not supported")
	ErrUnsupportedArgument  = errors.New("unsupported argument")
)

// Platform is the part of the platform client the language models need.
type Platform interface {
	Workspace(ctx context.Context) (platform.Workspace, error)
	UsePlugin(ctx context.Context, req platform.PluginRequest) (*platform.PluginInstance, error)
	CreateFile(ctx context.Context, req platform.FileRequest) (*platform.File, error)
	Tag(ctx context.Context, inst *platform.PluginInstance, req platform.TagRequest) (*platform.Task, error)
	Generate(ctx context.Context, inst *platform.PluginInstance, req platform.GenerateRequest) (*platform.Task, error)
	Wait(ctx context.Context, task *platform.Task, opts platform.WaitOptions) (*platform.Task, error)
}

// Generation is one completion of a prompt.
type Generation struct {
	Text string
	Info map[string]any
}

// Result holds one group of generations per prompt and the summed token usage.
type Result struct {
	Generations [][]Generation
	TokenUsage  map[string]int
}

// UsageRecorder receives the token usage of every successful batch.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, instanceHandle string, usage map[string]int) error
}

// truncateForLog cuts s to at most max bytes without splitting a rune.
func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
