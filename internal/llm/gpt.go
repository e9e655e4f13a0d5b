package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"

	"steamchain/internal/platform"
)

// GPTOptions configures the simple GPT model.
type GPTOptions struct {
	Temperature float64
	MaxWords    int
}

func DefaultGPTOptions() GPTOptions {
	return GPTOptions{Temperature: 0.8, MaxWords: 500}
}

type GPTOption func(*GPTOptions)

func WithGPTTemperature(t float64) GPTOption {
	return func(o *GPTOptions) { o.Temperature = t }
}

func WithMaxWords(n int) GPTOption {
	return func(o *GPTOptions) { o.MaxWords = n }
}

// GPT sends one prompt per call to a gpt-3 plugin instance chosen by the stop
// words.
type GPT struct {
	client Platform
	opts   GPTOptions
}

var _ llms.Model = (*GPT)(nil)

func NewGPT(client Platform, opts ...GPTOption) (*GPT, error) {
	if client == nil {
		return nil, fmt.Errorf("platform client is required")
	}
	o := DefaultGPTOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &GPT{client: client, opts: o}, nil
}

func (g *GPT) LLMType() string {
	return "steamship-gpt-3"
}

func (g *GPT) IdentifyingParams(ctx context.Context) (map[string]any, error) {
	ws, err := g.client.Workspace(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"plugin_handle":    PluginGPT3,
		"workspace_handle": ws.Handle,
		"temperature":      g.opts.Temperature,
		"max_words":        g.opts.MaxWords,
	}, nil
}

// gptInstanceHandle keeps only the letters and digits of the joined stop words.
func gptInstanceHandle(stop string) string {
	var sb strings.Builder
	sb.WriteString("gpt-3-")
	for _, r := range strings.ToLower(stop) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (g *GPT) complete(ctx context.Context, prompt string, stopWords []string) (string, error) {
	stop := strings.Join(stopWords, ",")
	inst, err := g.client.UsePlugin(ctx, platform.PluginRequest{
		PluginHandle:   PluginGPT3,
		InstanceHandle: gptInstanceHandle(stop),
		Config: map[string]any{
			"temperature": g.opts.Temperature,
			"max_words":   g.opts.MaxWords,
			"stop":        stop,
		},
		FetchIfExists: true,
	})
	if err != nil {
		return "", err
	}

	log.Printf("[llm.GPT.complete] prompt: %s", truncateForLog(prompt, 200))
	task, err := g.client.Generate(ctx, inst, platform.GenerateRequest{Text: prompt})
	if err != nil {
		return "", err
	}
	task, err = g.client.Wait(ctx, task, platform.WaitOptions{})
	if err != nil {
		return "", err
	}
	var out platform.GenerateOutput
	if err := task.DecodeOutput(&out); err != nil {
		return "", err
	}
	if len(out.Blocks) == 0 {
		return "", fmt.Errorf("generation returned no blocks")
	}
	return out.Blocks[0].Text, nil
}

func (g *GPT) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var callOpts llms.CallOptions
	for _, opt := range options {
		opt(&callOpts)
	}
	if callOpts.StreamingFunc != nil {
		return nil, ErrStreamingUnsupported
	}
	text, err := g.complete(ctx, promptFromMessages(messages), callOpts.StopWords)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (g *GPT) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

// NumTokens counts p50k_base tokens.
func (g *GPT) NumTokens(text string) int {
	enc, err := tiktoken.GetEncoding("p50k_base")
	if err != nil {
		log.Printf("[llm.GPT.NumTokens] falling back to estimate: %v", err)
		return llms.CountTokens("text-davinci-003", text)
	}
	return len(enc.Encode(text, nil, nil))
}
