package tools

import (
	"github.com/tmc/langchaingo/tools"
)

// Toolset holds the tools an agent may use.
type Toolset struct {
	Search      *SearchTool
	IndexSearch *IndexSearchTool
}

// AsList returns the configured tools as a slice of tools.Tool.
func (ts *Toolset) AsList() []tools.Tool {
	var out []tools.Tool
	if ts.Search != nil {
		out = append(out, ts.Search)
	}
	if ts.IndexSearch != nil {
		out = append(out, ts.IndexSearch)
	}
	return out
}

// Find returns a tool by name
func (ts *Toolset) Find(name string) (tools.Tool, bool) {
	switch name {
	case "search", "web_search":
		if ts.Search != nil {
			return ts.Search, true
		}
	case "index_search", "retrieve":
		if ts.IndexSearch != nil {
			return ts.IndexSearch, true
		}
	}
	return nil, false
}
