// Package renderer formats command results as markdown for terminal display.
package renderer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/schema"

	"steamchain/internal/platform"
	"steamchain/internal/storage"
)

// Completions renders each prompt followed by its completions.
func Completions(prompts []string, completions [][]string) string {
	var sb strings.Builder
	for i, prompt := range prompts {
		sb.WriteString(fmt.Sprintf("### Prompt %d\n\n%s\n\n", i+1, quote(prompt)))
		if i >= len(completions) || len(completions[i]) == 0 {
			sb.WriteString("_No completion._\n\n")
			continue
		}
		for j, text := range completions[i] {
			if len(completions[i]) > 1 {
				sb.WriteString(fmt.Sprintf("**Completion %d**\n\n", j+1))
			}
			sb.WriteString(strings.TrimSpace(text))
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// Documents renders search results with their source and score.
func Documents(query string, docs []schema.Document) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("```\nResults for %q\n```\n\n", query))
	if len(docs) == 0 {
		sb.WriteString("_Nothing found._\n")
		return sb.String()
	}
	for i, d := range docs {
		header := fmt.Sprintf("%d.", i+1)
		if src, ok := d.Metadata["source"]; ok {
			header += fmt.Sprintf(" `%v`", src)
		}
		if d.Score != 0 {
			header += fmt.Sprintf(" (score %.3f)", d.Score)
		}
		sb.WriteString(fmt.Sprintf("**%s**\n\n%s\n\n", header, quote(d.PageContent)))
	}
	return sb.String()
}

// Files renders the files created by an import.
func Files(source string, files []platform.File) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Imported %s** (%d files)\n\n", source, len(files)))
	for _, f := range files {
		origin := ""
		for _, t := range f.Tags {
			if t.Kind == platform.KindProvenance {
				origin = t.StringValue()
				break
			}
		}
		sb.WriteString(fmt.Sprintf("- `%s` %d blocks", f.ID, len(f.Blocks)))
		if origin != "" {
			sb.WriteString(" from " + origin)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Segments renders code chunks as python code blocks.
func Segments(path string, segments []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s**: %d segments\n\n", path, len(segments)))
	for i, s := range segments {
		sb.WriteString(fmt.Sprintf("Segment %d\n\n```python\n%s\n```\n\n", i+1, s))
	}
	return sb.String()
}

// Usage renders the token usage ledger as a table.
func Usage(totals []storage.UsageTotal) string {
	if len(totals) == 0 {
		return "_No usage recorded._\n"
	}
	totals = append([]storage.UsageTotal(nil), totals...)
	sort.SliceStable(totals, func(i, j int) bool { return totals[i].TotalTokens > totals[j].TotalTokens })

	var sb strings.Builder
	sb.WriteString("| Instance | Batches | Prompt | Completion | Total |\n")
	sb.WriteString("|---|---:|---:|---:|---:|\n")
	var sum storage.UsageTotal
	for _, u := range totals {
		sb.WriteString(fmt.Sprintf("| `%s` | %d | %d | %d | %d |\n",
			u.InstanceHandle, u.Batches, u.PromptTokens, u.CompletionTokens, u.TotalTokens))
		sum.Batches += u.Batches
		sum.PromptTokens += u.PromptTokens
		sum.CompletionTokens += u.CompletionTokens
		sum.TotalTokens += u.TotalTokens
	}
	sb.WriteString(fmt.Sprintf("| **all** | %d | %d | %d | %d |\n",
		sum.Batches, sum.PromptTokens, sum.CompletionTokens, sum.TotalTokens))
	return sb.String()
}

func quote(s string) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		lines = append(lines, "> "+line)
	}
	return strings.Join(lines, "\n")
}
