// Package chat runs chat completions on the platform's gpt-4 plugin.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"

	"steamchain/internal/llm"
	"steamchain/internal/platform"
)

const PluginGPT4 = "gpt-4"

var ErrStopConflict = errors.New("stop found in both the input and default params")

// Options configures the chat model.
type Options struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	N              int
	RequestTimeout int
	MaxRetries     int
	ModerateOutput bool
	APIKey         string
	ModelKwargs    map[string]any
}

func DefaultOptions() Options {
	return Options{
		Model:          "gpt-3.5-turbo",
		Temperature:    0.7,
		N:              1,
		RequestTimeout: 60,
		MaxRetries:     6,
		ModerateOutput: true,
	}
}

type Option func(*Options)

func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

func WithN(n int) Option {
	return func(o *Options) { o.N = n }
}

func WithRequestTimeout(seconds int) Option {
	return func(o *Options) { o.RequestTimeout = seconds }
}

func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithModerateOutput toggles the plugin's moderation of generated text.
func WithModerateOutput(v bool) Option {
	return func(o *Options) { o.ModerateOutput = v }
}

// WithAPIKey passes a provider key to the plugin instead of the platform's.
func WithAPIKey(key string) Option {
	return func(o *Options) { o.APIKey = key }
}

func WithModelKwarg(key string, value any) Option {
	return func(o *Options) {
		if o.ModelKwargs == nil {
			o.ModelKwargs = map[string]any{}
		}
		o.ModelKwargs[key] = value
	}
}

// Model is a chat model backed by a gpt-4 plugin instance. The instance is
// created on first use.
type Model struct {
	client llm.Platform
	opts   Options

	mu   sync.Mutex
	inst *platform.PluginInstance
}

var _ llms.Model = (*Model)(nil)

func New(client llm.Platform, opts ...Option) (*Model, error) {
	if client == nil {
		return nil, fmt.Errorf("platform client is required")
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.N < 1 {
		return nil, fmt.Errorf("n must be at least 1")
	}
	return &Model{client: client, opts: o}, nil
}

// pluginConfig copies sampling settings from the model kwargs only when they
// are set to a non-zero value.
func (m *Model) pluginConfig() map[string]any {
	cfg := map[string]any{
		"model":           m.opts.Model,
		"moderate_output": m.opts.ModerateOutput,
	}
	if m.opts.APIKey != "" {
		cfg["openai_api_key"] = m.opts.APIKey
	}
	for _, arg := range []string{"max_tokens", "temperature", "top_p", "presence_penalty", "frequency_penalty", "max_retries"} {
		if v, ok := m.opts.ModelKwargs[arg]; ok && !isZero(v) {
			cfg[arg] = v
		}
	}
	return cfg
}

func isZero(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case int:
		return n == 0
	case float64:
		return n == 0
	case string:
		return n == ""
	case bool:
		return !n
	}
	return false
}

func (m *Model) instance(ctx context.Context) (*platform.PluginInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inst != nil {
		return m.inst, nil
	}
	inst, err := m.client.UsePlugin(ctx, platform.PluginRequest{
		PluginHandle:  PluginGPT4,
		Config:        m.pluginConfig(),
		FetchIfExists: true,
	})
	if err != nil {
		return nil, err
	}
	m.inst = inst
	return inst, nil
}

func (m *Model) defaultParams(o Options) map[string]any {
	var maxTokens any
	if o.MaxTokens > 0 {
		maxTokens = o.MaxTokens
	}
	return map[string]any{
		"model":           o.Model,
		"request_timeout": o.RequestTimeout,
		"max_tokens":      maxTokens,
		"n":               o.N,
		"temperature":     o.Temperature,
	}
}

// IdentifyingParams describe the model for caching and tracing.
func (m *Model) IdentifyingParams(ctx context.Context) (map[string]any, error) {
	ws, err := m.client.Workspace(ctx)
	if err != nil {
		return nil, err
	}
	params := m.defaultParams(m.opts)
	params["model_name"] = m.opts.Model
	params["workspace_handle"] = ws.Handle
	params["plugin_handle"] = PluginGPT4
	return params, nil
}

// LLMString is the canonical form of IdentifyingParams.
func (m *Model) LLMString(ctx context.Context) (string, error) {
	params, err := m.IdentifyingParams(ctx)
	if err != nil {
		return "", err
	}
	b, err := platform.CanonicalJSON(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *Model) params(c llms.CallOptions) (map[string]any, error) {
	o := m.opts
	if c.Model != "" {
		o.Model = c.Model
	}
	if c.Temperature != 0 {
		o.Temperature = c.Temperature
	}
	if c.MaxTokens != 0 {
		o.MaxTokens = c.MaxTokens
	}
	if c.N != 0 {
		o.N = c.N
	}
	params := m.defaultParams(o)
	for k, v := range o.ModelKwargs {
		params[k] = v
	}
	if len(c.StopWords) > 0 {
		if _, ok := params["stop"]; ok {
			return nil, ErrStopConflict
		}
		params["stop"] = c.StopWords
	}
	return params, nil
}

func roleFor(t llms.ChatMessageType) string {
	switch t {
	case llms.ChatMessageTypeAI:
		return platform.RoleAssistant
	case llms.ChatMessageTypeSystem:
		return platform.RoleSystem
	case llms.ChatMessageTypeFunction:
		return platform.RoleFunction
	case llms.ChatMessageTypeTool:
		return platform.RoleTool
	default:
		return platform.RoleUser
	}
}

// blocks turns messages into role-tagged blocks, skipping empty ones.
func blocks(messages []llms.MessageContent) []platform.Block {
	var out []platform.Block
	for _, msg := range messages {
		var parts []string
		for _, p := range msg.Parts {
			if t, ok := p.(llms.TextContent); ok {
				parts = append(parts, t.Text)
			}
		}
		text := strings.Join(parts, "\n")
		if text == "" {
			continue
		}
		out = append(out, platform.Block{
			Text:     text,
			MimeType: platform.MimeText,
			Tags:     []platform.Tag{{Kind: platform.KindRole, Name: roleFor(msg.Role)}},
		})
	}
	return out
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var callOpts llms.CallOptions
	for _, opt := range options {
		opt(&callOpts)
	}
	if callOpts.StreamingFunc != nil {
		return nil, llm.ErrStreamingUnsupported
	}
	params, err := m.params(callOpts)
	if err != nil {
		return nil, err
	}
	inst, err := m.instance(ctx)
	if err != nil {
		return nil, err
	}

	file, err := m.client.CreateFile(ctx, platform.FileRequest{Blocks: blocks(messages)})
	if err != nil {
		return nil, err
	}
	task, err := m.client.Generate(ctx, inst, platform.GenerateRequest{InputFileID: file.ID, Options: params})
	if err != nil {
		return nil, err
	}
	task, err = m.client.Wait(ctx, task, platform.WaitOptions{})
	if err != nil {
		return nil, err
	}
	var out platform.GenerateOutput
	if err := task.DecodeOutput(&out); err != nil {
		return nil, err
	}

	resp := &llms.ContentResponse{}
	for _, b := range out.Blocks {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{
			Content:        b.Text,
			GenerationInfo: map[string]any{"model_name": m.opts.Model},
		})
	}
	if len(resp.Choices) == 0 {
		log.Printf("[chat.Model.GenerateContent] %s returned no blocks", inst.Handle)
	}
	return resp, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// NumTokens counts tokens with the model's tiktoken encoding.
func (m *Model) NumTokens(text string) int {
	enc, err := tiktoken.EncodingForModel(m.opts.Model)
	if err != nil {
		log.Printf("[chat.Model.NumTokens] falling back to estimate: %v", err)
		return llms.CountTokens(m.opts.Model, text)
	}
	return len(enc.Encode(text, nil, nil))
}

// NumTokensFromMessages counts the tokens a message list costs, following the
// chat markup of gpt-3.5-turbo-0301 and gpt-4-0314.
func (m *Model) NumTokensFromMessages(messages []llms.ChatMessage) (int, error) {
	model := m.opts.Model
	switch model {
	case "gpt-3.5-turbo":
		model = "gpt-3.5-turbo-0301"
	case "gpt-4":
		model = "gpt-4-0314"
	}

	var perMessage, perName int
	switch model {
	case "gpt-3.5-turbo-0301":
		perMessage, perName = 4, -1
	case "gpt-4-0314":
		perMessage, perName = 3, 1
	default:
		return 0, fmt.Errorf("token counting is not implemented for model %s", model)
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		log.Printf("[chat.Model.NumTokensFromMessages] model not found, using cl100k_base: %v", err)
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, fmt.Errorf("load encoding: %w", err)
		}
	}

	count := 0
	for _, msg := range messages {
		count += perMessage
		count += len(enc.Encode(messageRole(msg), nil, nil))
		count += len(enc.Encode(msg.GetContent(), nil, nil))
		if named, ok := msg.(llms.Named); ok && named.GetName() != "" {
			count += len(enc.Encode(named.GetName(), nil, nil)) + perName
		}
	}
	// replies are primed with <im_start>assistant
	return count + 3, nil
}

func messageRole(msg llms.ChatMessage) string {
	if g, ok := msg.(llms.GenericChatMessage); ok && g.Role != "" {
		return g.Role
	}
	return roleFor(msg.GetType())
}
