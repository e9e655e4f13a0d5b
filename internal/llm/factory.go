package llm

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Settings select and configure a platform-backed language model.
type Settings struct {
	// Kind is "openai" (batched completions, the default) or "gpt".
	Kind      string
	Arguments map[string]string
	Usage     UsageRecorder
}

// New creates the language model described by s.
func New(client Platform, s Settings) (llms.Model, error) {
	opts, err := ParseArguments(s.Arguments)
	if err != nil {
		return nil, err
	}
	if s.Usage != nil {
		opts = append(opts, WithUsageRecorder(s.Usage))
	}

	switch strings.ToLower(s.Kind) {
	case "", "openai":
		return NewOpenAI(client, opts...)

	case "gpt", "gpt-3":
		if ignored := gptIgnoredArguments(s.Arguments); len(ignored) > 0 {
			log.Printf("[llm.New] gpt model ignores arguments: %s", strings.Join(ignored, ", "))
		}
		o := DefaultOpenAIOptions()
		o.Temperature = DefaultGPTOptions().Temperature
		o.MaxTokens = DefaultGPTOptions().MaxWords
		for _, opt := range opts {
			opt(&o)
		}
		return NewGPT(client, WithGPTTemperature(o.Temperature), WithMaxWords(o.MaxTokens))

	default:
		return nil, fmt.Errorf("unknown model kind: %s", s.Kind)
	}
}

// gptIgnoredArguments lists the arguments the gpt model has no use for.
func gptIgnoredArguments(args map[string]string) []string {
	var out []string
	for k := range args {
		if k != "temperature" && k != "max_tokens" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
