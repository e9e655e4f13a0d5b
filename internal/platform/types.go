package platform

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tag kinds used by the adapters.
const (
	KindGeneration   = "generation"
	KindTimestamp    = "timestamp"
	KindProvenance   = "provenance"
	KindRole         = "role"
	KindSearchResult = "search-result"
	KindTokenUsage   = "token_usage"
	KindMetadata     = "metadata"
)

// Tag value keys.
const (
	ValueString    = "string-value"
	ValueTimestamp = "timestamp"
)

// Provenance tag names.
const (
	ProvenanceFile = "file"
	ProvenanceURL  = "url"
)

// Role tag names.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleFunction  = "function"
	RoleTool      = "tool"
)

const MimeText = "text/plain"

// TimestampLayout is fixed-width so timestamp tag values sort in time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp formats t for a timestamp tag.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type Workspace struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

type File struct {
	ID       string  `json:"id"`
	Handle   string  `json:"handle,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
	Blocks   []Block `json:"blocks,omitempty"`
	Tags     []Tag   `json:"tags,omitempty"`
}

type Block struct {
	ID       string `json:"id,omitempty"`
	FileID   string `json:"fileId,omitempty"`
	Text     string `json:"text"`
	MimeType string `json:"mimeType,omitempty"`
	Tags     []Tag  `json:"tags,omitempty"`
}

// Tag is metadata attached to a file, a block, or (with neither id set) the workspace.
type Tag struct {
	ID      string         `json:"id,omitempty"`
	FileID  string         `json:"fileId,omitempty"`
	BlockID string         `json:"blockId,omitempty"`
	Kind    string         `json:"kind"`
	Name    string         `json:"name,omitempty"`
	Value   map[string]any `json:"value,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// StringValue returns the tag's string-value entry, or "" when absent.
func (t Tag) StringValue() string {
	if t.Value == nil {
		return ""
	}
	s, _ := t.Value[ValueString].(string)
	return s
}

type PluginInstance struct {
	ID           string         `json:"id"`
	Handle       string         `json:"handle"`
	PluginHandle string         `json:"pluginHandle"`
	Config       map[string]any `json:"config,omitempty"`
}

type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Task is a handle to an asynchronous remote operation.
type Task struct {
	ID            string          `json:"taskId"`
	State         TaskState       `json:"state"`
	StatusMessage string          `json:"statusMessage,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
}

func (t *Task) Done() bool {
	return t.State == TaskSucceeded || t.State == TaskFailed
}

// DecodeOutput unmarshals the task output into v.
func (t *Task) DecodeOutput(v any) error {
	if len(t.Output) == 0 {
		return fmt.Errorf("task %s has no output", t.ID)
	}
	if err := json.Unmarshal(t.Output, v); err != nil {
		return fmt.Errorf("decode task %s output: %w", t.ID, err)
	}
	return nil
}

// TagOutput is the output of a tagging task.
type TagOutput struct {
	File File `json:"file"`
}

// GenerateOutput is the output of a generation task.
type GenerateOutput struct {
	Blocks []Block `json:"blocks"`
}

// SearchOutput is the output of an embedding index search.
type SearchOutput struct {
	Items []SearchItem `json:"items"`
}

type SearchItem struct {
	Tag   Tag     `json:"tag"`
	Score float64 `json:"score,omitempty"`
}

// IndexItem is a text and its metadata to embed into an index.
type IndexItem struct {
	Text  string         `json:"text"`
	Value map[string]any `json:"value,omitempty"`
}
