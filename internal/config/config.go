package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

const FileName = "steamchain.ini"

type PlatformConfig struct {
	APIKey    string
	APIBase   string
	Workspace string
	// Timeout is the HTTP timeout in seconds.
	Timeout int
}

type LLMConfig struct {
	// Kind selects the wrapper: "openai" or "gpt".
	Kind string
	// Arguments are the remaining [llm] keys, validated by llm.ParseArguments.
	Arguments map[string]string
}

type ChatConfig struct {
	Model          string
	Temperature    float64
	ModerateOutput bool
}

type IndexConfig struct {
	EmbeddingModel string
	Name           string
}

type Config struct {
	Platform PlatformConfig
	LLM      LLMConfig
	Chat     ChatConfig
	Index    IndexConfig
	// StoragePath overrides the local ledger database location.
	StoragePath string
	LogLevel    string
	// Path is the file the configuration was read from, empty when none was found.
	Path string
}

// path returns the config file to read: STEAMCHAIN_CONFIG, then
// ./steamchain.ini, then ~/.steamchain/config.ini.
func path() string {
	if p := os.Getenv("STEAMCHAIN_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	home, err := os.UserHomeDir()
	if err == nil {
		globalPath := filepath.Join(home, ".steamchain", "config.ini")
		if _, err := os.Stat(globalPath); err == nil {
			return globalPath
		}
	}
	return ""
}

// Load reads the configuration. Without a config file every setting takes
// its default.
func Load() (*Config, error) {
	configPath := path()
	cfg := ini.Empty()
	if configPath != "" {
		var err error
		if cfg, err = ini.Load(configPath); err != nil {
			return nil, err
		}
	}

	platformSec := cfg.Section("platform")
	llmSec := cfg.Section("llm")
	chatSec := cfg.Section("chat")
	indexSec := cfg.Section("index")

	args := map[string]string{}
	for _, key := range llmSec.Keys() {
		if key.Name() == "kind" {
			continue
		}
		args[key.Name()] = key.String()
	}

	c := &Config{
		Platform: PlatformConfig{
			APIKey:    platformSec.Key("api_key").String(),
			APIBase:   platformSec.Key("api_base").MustString("https://api.steamship.com/api/v1"),
			Workspace: platformSec.Key("workspace").String(),
			Timeout:   platformSec.Key("timeout").MustInt(60),
		},
		LLM: LLMConfig{
			Kind:      strings.ToLower(llmSec.Key("kind").MustString("openai")),
			Arguments: args,
		},
		Chat: ChatConfig{
			Model:          chatSec.Key("model").MustString("gpt-3.5-turbo"),
			Temperature:    chatSec.Key("temperature").MustFloat64(0.7),
			ModerateOutput: chatSec.Key("moderate_output").MustBool(true),
		},
		Index: IndexConfig{
			EmbeddingModel: indexSec.Key("embedding_model").MustString("text-embedding-ada-002"),
			Name:           indexSec.Key("name").MustString("steamchain"),
		},
		StoragePath: cfg.Section("storage").Key("path").String(),
		LogLevel:    cfg.Section("log").Key("level").MustString("info"),
		Path:        configPath,
	}
	if key := os.Getenv("STEAMCHAIN_API_KEY"); key != "" {
		c.Platform.APIKey = key
	}
	return c, nil
}
