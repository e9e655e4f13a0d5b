package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OpenAIOptions configures the completion wrapper.
type OpenAIOptions struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	N                int
	BestOf           int
	ModelKwargs      map[string]any
	BatchSize        int
	RequestTimeout   float64
	MaxRetries       int
	BatchTimeout     time.Duration
	Verbose          bool
	Cache            bool
	Usage            UsageRecorder
}

// DefaultOpenAIOptions returns the documented defaults.
func DefaultOpenAIOptions() OpenAIOptions {
	return OpenAIOptions{
		Model:          "text-davinci-003",
		Temperature:    0.7,
		MaxTokens:      256,
		TopP:           1,
		N:              1,
		BestOf:         1,
		BatchSize:      20,
		RequestTimeout: 600,
		MaxRetries:     6,
		BatchTimeout:   10 * time.Minute,
	}
}

type Option func(*OpenAIOptions)

func WithModel(model string) Option {
	return func(o *OpenAIOptions) { o.Model = model }
}

func WithTemperature(t float64) Option {
	return func(o *OpenAIOptions) { o.Temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(o *OpenAIOptions) { o.MaxTokens = n }
}

func WithTopP(p float64) Option {
	return func(o *OpenAIOptions) { o.TopP = p }
}

func WithPenalties(frequency, presence float64) Option {
	return func(o *OpenAIOptions) {
		o.FrequencyPenalty = frequency
		o.PresencePenalty = presence
	}
}

// WithN sets how many completions are generated per prompt.
func WithN(n int) Option {
	return func(o *OpenAIOptions) { o.N = n }
}

func WithBestOf(n int) Option {
	return func(o *OpenAIOptions) { o.BestOf = n }
}

// WithModelKwarg adds a raw parameter that is passed through to the plugin.
func WithModelKwarg(key string, value any) Option {
	return func(o *OpenAIOptions) {
		if o.ModelKwargs == nil {
			o.ModelKwargs = map[string]any{}
		}
		o.ModelKwargs[key] = value
	}
}

// WithBatchSize sets how many prompts go into one tagged file.
func WithBatchSize(n int) Option {
	return func(o *OpenAIOptions) { o.BatchSize = n }
}

// WithRequestTimeout sets the plugin's per-request timeout in seconds.
func WithRequestTimeout(seconds float64) Option {
	return func(o *OpenAIOptions) { o.RequestTimeout = seconds }
}

func WithMaxRetries(n int) Option {
	return func(o *OpenAIOptions) { o.MaxRetries = n }
}

// WithBatchTimeout bounds how long a single batch task is awaited.
func WithBatchTimeout(d time.Duration) Option {
	return func(o *OpenAIOptions) { o.BatchTimeout = d }
}

func WithVerbose(v bool) Option {
	return func(o *OpenAIOptions) { o.Verbose = v }
}

func WithCache(v bool) Option {
	return func(o *OpenAIOptions) { o.Cache = v }
}

func WithUsageRecorder(r UsageRecorder) Option {
	return func(o *OpenAIOptions) { o.Usage = r }
}

var allowedArguments = map[string]bool{
	"model_name":        true,
	"temperature":       true,
	"max_tokens":        true,
	"top_p":             true,
	"frequency_penalty": true,
	"presence_penalty":  true,
	"n":                 true,
	"best_of":           true,
	"batch_size":        true,
	"request_timeout":   true,
	"max_retries":       true,
	"verbose":           true,
	"cache":             true,
}

const modelKwargsPrefix = "model_kwargs."

// ParseArguments turns a key/value argument map (from a config file or the
// command line) into options. Only whitelisted keys are accepted; every other
// key is reported at once.
func ParseArguments(args map[string]string) ([]Option, error) {
	var unsupported []string
	for k := range args {
		if !allowedArguments[k] && !(strings.HasPrefix(k, modelKwargsPrefix) && len(k) > len(modelKwargsPrefix)) {
			unsupported = append(unsupported, k)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return nil, fmt.Errorf("%w(s): %s", ErrUnsupportedArgument, strings.Join(unsupported, ", "))
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var opts []Option
	for _, k := range keys {
		v := strings.TrimSpace(args[k])
		opt, err := parseArgument(k, v)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", k, err)
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func parseArgument(key, value string) (Option, error) {
	switch key {
	case "model_name":
		return WithModel(value), nil
	case "temperature", "top_p", "frequency_penalty", "presence_penalty", "request_timeout":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		return func(o *OpenAIOptions) {
			switch key {
			case "temperature":
				o.Temperature = f
			case "top_p":
				o.TopP = f
			case "frequency_penalty":
				o.FrequencyPenalty = f
			case "presence_penalty":
				o.PresencePenalty = f
			case "request_timeout":
				o.RequestTimeout = f
			}
		}, nil
	case "max_tokens", "n", "best_of", "batch_size", "max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, err
		}
		return func(o *OpenAIOptions) {
			switch key {
			case "max_tokens":
				o.MaxTokens = n
			case "n":
				o.N = n
			case "best_of":
				o.BestOf = n
			case "batch_size":
				o.BatchSize = n
			case "max_retries":
				o.MaxRetries = n
			}
		}, nil
	case "verbose", "cache":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, err
		}
		if key == "verbose" {
			return WithVerbose(b), nil
		}
		return WithCache(b), nil
	}
	return WithModelKwarg(strings.TrimPrefix(key, modelKwargsPrefix), parseLiteral(value)), nil
}

// parseLiteral reads JSON scalars and lists, keeping anything else as a string.
func parseLiteral(value string) any {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		return value
	}
	if f, ok := v.(float64); ok && !strings.ContainsAny(value, ".eE") {
		return int(f)
	}
	return v
}
