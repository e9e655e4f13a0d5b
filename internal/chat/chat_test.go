package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"steamchain/internal/platform"
	"steamchain/internal/platform/platformtest"
)

// roleEcho answers with one block per input block, prefixed by its role.
func roleEcho(inst platform.PluginInstance, call platformtest.GenerateCall) ([]platform.Block, error) {
	var out []platform.Block
	for _, b := range call.Blocks {
		role := ""
		if len(b.Tags) > 0 {
			role = b.Tags[0].Name
		}
		out = append(out, platform.Block{Text: role + ": " + b.Text})
	}
	return out, nil
}

func TestGenerateContentSendsRoleTaggedBlocks(t *testing.T) {
	fake := platformtest.New(t)
	fake.OnGenerate(PluginGPT4, roleEcho)

	model, err := New(fake.Client(t), WithModelKwarg("top_p", 0.5), WithModelKwarg("presence_penalty", 0.0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := model.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "you are terse"),
		llms.TextParts(llms.ChatMessageTypeHuman, ""),
		llms.TextParts(llms.ChatMessageTypeHuman, "hello"),
		llms.TextParts(llms.ChatMessageTypeAI, "hi"),
		llms.TextParts(llms.ChatMessageTypeGeneric, "other"),
	}, llms.WithStopWords([]string{"\n"}))
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}

	var got []string
	for _, c := range resp.Choices {
		got = append(got, c.Content)
	}
	want := "system: you are terse|user: hello|assistant: hi|user: other"
	if strings.Join(got, "|") != want {
		t.Fatalf("unexpected choices: %q", got)
	}

	create := fake.Requests("plugin/instance/create")[0]
	if _, ok := create["handle"]; ok {
		t.Fatalf("chat instances are fetched by config, not by handle: %#v", create)
	}
	cfg := create["config"].(map[string]any)
	if cfg["model"] != "gpt-3.5-turbo" || cfg["moderate_output"] != true || cfg["top_p"] != 0.5 {
		t.Fatalf("unexpected plugin config: %#v", cfg)
	}
	if _, ok := cfg["presence_penalty"]; ok {
		t.Fatalf("zero-valued kwargs must not reach the plugin config: %#v", cfg)
	}

	gen := fake.Requests("plugin/instance/generate")[0]
	opts := gen["options"].(map[string]any)
	if opts["n"] != float64(1) || opts["max_tokens"] != nil || opts["temperature"] != 0.7 {
		t.Fatalf("unexpected options: %#v", opts)
	}
	if stop, _ := opts["stop"].([]any); len(stop) != 1 || stop[0] != "\n" {
		t.Fatalf("unexpected stop: %#v", opts["stop"])
	}
}

func TestPluginInstanceIsReused(t *testing.T) {
	fake := platformtest.New(t)
	fake.OnGenerate(PluginGPT4, roleEcho)
	model, _ := New(fake.Client(t))

	for i := 0; i < 2; i++ {
		if _, err := model.Call(context.Background(), "ping"); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}
	if got := fake.Calls("plugin/instance/create"); got != 1 {
		t.Fatalf("expected one instance lookup, got %d", got)
	}
}

func TestStopConflict(t *testing.T) {
	fake := platformtest.New(t)
	model, _ := New(fake.Client(t), WithModelKwarg("stop", []string{"x"}))
	_, err := model.Call(context.Background(), "ping", llms.WithStopWords([]string{"y"}))
	if !errors.Is(err, ErrStopConflict) {
		t.Fatalf("expected ErrStopConflict, got %v", err)
	}
}

func TestNewRejectsInvalidN(t *testing.T) {
	fake := platformtest.New(t)
	if _, err := New(fake.Client(t), WithN(0)); err == nil {
		t.Fatal("expected error for n < 1")
	}
}

func TestIdentifyingParams(t *testing.T) {
	fake := platformtest.New(t)
	model, _ := New(fake.Client(t), WithModel("gpt-4"))
	params, err := model.IdentifyingParams(context.Background())
	if err != nil {
		t.Fatalf("IdentifyingParams: %v", err)
	}
	if params["plugin_handle"] != PluginGPT4 || params["model_name"] != "gpt-4" || params["workspace_handle"] != "test-workspace" {
		t.Fatalf("unexpected params: %#v", params)
	}
}

func TestNumTokensFromMessagesRejectsUnknownModel(t *testing.T) {
	fake := platformtest.New(t)
	model, _ := New(fake.Client(t), WithModel("text-davinci-003"))
	if _, err := model.NumTokensFromMessages([]llms.ChatMessage{llms.HumanChatMessage{Content: "hi"}}); err == nil {
		t.Fatal("expected error for unsupported model")
	}
}
