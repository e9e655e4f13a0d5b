package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"steamchain/internal/platform"
)

// GenerationFailed stands in for the completions of a prompt whose batch
// could not be generated.
const GenerationFailed = "Generation failed."

// OpenAI runs completions on the platform's gpt-3 plugin, batching prompts
// into tagged files.
type OpenAI struct {
	client Platform
	opts   OpenAIOptions
}

var _ llms.Model = (*OpenAI)(nil)

func NewOpenAI(client Platform, opts ...Option) (*OpenAI, error) {
	o := DefaultOpenAIOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if client == nil {
		return nil, fmt.Errorf("platform client is required")
	}
	if o.N < 1 {
		return nil, fmt.Errorf("n must be at least 1")
	}
	if o.BatchSize < 1 {
		return nil, fmt.Errorf("batch_size must be at least 1")
	}
	return &OpenAI{client: client, opts: o}, nil
}

// Options returns the configured options.
func (o *OpenAI) Options() OpenAIOptions {
	return o.opts
}

func (o *OpenAI) LLMType() string {
	return "steamship-openai"
}

func (o OpenAIOptions) defaultParams() map[string]any {
	params := map[string]any{
		"model":             o.Model,
		"temperature":       o.Temperature,
		"max_words":         o.MaxTokens,
		"top_p":             o.TopP,
		"frequency_penalty": o.FrequencyPenalty,
		"presence_penalty":  o.PresencePenalty,
		"n_completions":     o.N,
		"best_of":           o.BestOf,
		"request_timeout":   o.RequestTimeout,
		"max_retries":       o.MaxRetries,
	}
	for k, v := range o.ModelKwargs {
		params[k] = v
	}
	return params
}

func (o OpenAIOptions) invocationParams(stop []string) map[string]any {
	params := map[string]any{"stop": strings.Join(stop, ",")}
	for k, v := range o.defaultParams() {
		params[k] = v
	}
	return params
}

// InstanceHandle is the plugin instance handle used for the given stop words.
func (o *OpenAI) InstanceHandle(stop []string) (string, error) {
	return platform.HashHandle("gpt-", o.opts.invocationParams(stop))
}

// IdentifyingParams describe the model for caching and tracing.
func (o *OpenAI) IdentifyingParams(ctx context.Context) (map[string]any, error) {
	ws, err := o.client.Workspace(ctx)
	if err != nil {
		return nil, err
	}
	params := o.opts.defaultParams()
	params["plugin_handle"] = PluginGPT3
	params["workspace_handle"] = ws.Handle
	params["model_name"] = o.opts.Model
	return params, nil
}

// LLMString is the canonical form of IdentifyingParams.
func (o *OpenAI) LLMString(ctx context.Context) (string, error) {
	params, err := o.IdentifyingParams(ctx)
	if err != nil {
		return "", err
	}
	b, err := platform.CanonicalJSON(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Generate completes every prompt, returning one group of N generations per
// prompt. Remote failures of a batch are logged and each of its prompts gets a
// single GenerationFailed placeholder, so groups stay aligned with prompts.
func (o *OpenAI) Generate(ctx context.Context, prompts []string, stop []string) (*Result, error) {
	return o.generate(ctx, o.opts, prompts, stop)
}

func (o *OpenAI) generate(ctx context.Context, opts OpenAIOptions, prompts []string, stop []string) (*Result, error) {
	params := opts.invocationParams(stop)
	handle, err := platform.HashHandle("gpt-", params)
	if err != nil {
		return nil, fmt.Errorf("instance handle: %w", err)
	}

	result := &Result{TokenUsage: map[string]int{}}
	for start := 0; start < len(prompts); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(prompts))
		gens, usage, err := o.batch(ctx, opts, handle, params, prompts[start:end])
		if err != nil {
			return nil, err
		}
		for i := range end - start {
			lo, hi := i*opts.N, min((i+1)*opts.N, len(gens))
			if lo >= hi {
				result.Generations = append(result.Generations, []Generation{{Text: GenerationFailed}})
				continue
			}
			result.Generations = append(result.Generations, gens[lo:hi])
		}
		for k, v := range usage {
			result.TokenUsage[k] += v
		}
	}

	if len(result.Generations) == 0 {
		result.Generations = [][]Generation{{{Text: GenerationFailed}}}
	}
	return result, nil
}

// batch returns an error only for failures that should abort the whole call.
func (o *OpenAI) batch(ctx context.Context, opts OpenAIOptions, handle string, params map[string]any, prompts []string) ([]Generation, map[string]int, error) {
	inst, err := o.client.UsePlugin(ctx, platform.PluginRequest{
		PluginHandle:   PluginGPT3,
		InstanceHandle: handle,
		Config:         params,
		FetchIfExists:  true,
	})
	if err != nil {
		return nil, nil, err
	}

	blocks := make([]platform.Block, len(prompts))
	for i, p := range prompts {
		blocks[i] = platform.Block{Text: p}
		if opts.Verbose {
			log.Printf("[llm.OpenAI.batch] prompt %d: %s", i, truncateForLog(p, 200))
		}
	}

	file, err := o.tagBatch(ctx, opts, inst, blocks)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		log.Printf("[llm.OpenAI.batch] could not generate with %s: %v", handle, err)
		return nil, nil, nil
	}

	var gens []Generation
	for _, b := range file.Blocks {
		for _, t := range b.Tags {
			if t.Kind == platform.KindGeneration {
				gens = append(gens, Generation{Text: t.StringValue()})
			}
		}
	}
	usage := map[string]int{}
	for _, t := range file.Tags {
		if t.Kind == platform.KindTokenUsage {
			usage = toIntMap(t.Value)
		}
	}

	if opts.Usage != nil && len(usage) > 0 {
		if err := opts.Usage.RecordUsage(ctx, handle, usage); err != nil {
			log.Printf("[llm.OpenAI.batch] could not record token usage: %v", err)
		}
	}
	return gens, usage, nil
}

func (o *OpenAI) tagBatch(ctx context.Context, opts OpenAIOptions, inst *platform.PluginInstance, blocks []platform.Block) (*platform.File, error) {
	file, err := o.client.CreateFile(ctx, platform.FileRequest{Blocks: blocks})
	if err != nil {
		return nil, err
	}
	task, err := o.client.Tag(ctx, inst, platform.TagRequest{FileID: file.ID})
	if err != nil {
		return nil, err
	}
	task, err = o.client.Wait(ctx, task, platform.WaitOptions{MaxTimeout: opts.BatchTimeout})
	if err != nil {
		return nil, err
	}
	var out platform.TagOutput
	if err := task.DecodeOutput(&out); err != nil {
		return nil, fmt.Errorf("decode tag output: %w", err)
	}
	return &out.File, nil
}

// GenerateContent joins the text of all messages into one prompt.
func (o *OpenAI) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var callOpts llms.CallOptions
	for _, opt := range options {
		opt(&callOpts)
	}
	if callOpts.StreamingFunc != nil {
		return nil, ErrStreamingUnsupported
	}

	opts := o.opts.withCallOptions(callOpts)
	res, err := o.generate(ctx, opts, []string{promptFromMessages(messages)}, callOpts.StopWords)
	if err != nil {
		return nil, err
	}

	info := usageInfo(res.TokenUsage)
	choices := make([]*llms.ContentChoice, 0, len(res.Generations[0]))
	for _, g := range res.Generations[0] {
		choices = append(choices, &llms.ContentChoice{Content: g.Text, GenerationInfo: info})
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func (o *OpenAI) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

func (o OpenAIOptions) withCallOptions(c llms.CallOptions) OpenAIOptions {
	if c.Model != "" {
		o.Model = c.Model
	}
	if c.Temperature != 0 {
		o.Temperature = c.Temperature
	}
	if c.MaxTokens != 0 {
		o.MaxTokens = c.MaxTokens
	}
	if c.TopP != 0 {
		o.TopP = c.TopP
	}
	if c.N != 0 {
		o.N = c.N
	}
	if c.FrequencyPenalty != 0 {
		o.FrequencyPenalty = c.FrequencyPenalty
	}
	if c.PresencePenalty != 0 {
		o.PresencePenalty = c.PresencePenalty
	}
	return o
}

func promptFromMessages(messages []llms.MessageContent) string {
	var parts []string
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				parts = append(parts, t.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func usageInfo(usage map[string]int) map[string]any {
	info := map[string]any{
		"PromptTokens":     usage["prompt_tokens"],
		"CompletionTokens": usage["completion_tokens"],
		"TotalTokens":      usage["total_tokens"],
	}
	raw := make(map[string]any, len(usage))
	for k, v := range usage {
		raw[k] = v
	}
	info["TokenUsage"] = raw
	return info
}

func toIntMap(m map[string]any) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		switch n := v.(type) {
		case float64:
			out[k] = int(n)
		case int:
			out[k] = n
		case int64:
			out[k] = int(n)
		}
	}
	return out
}
