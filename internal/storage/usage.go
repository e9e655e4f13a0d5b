package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// UsageLedger records the token usage reported by generation batches. It
// satisfies llm.UsageRecorder.
type UsageLedger struct{}

func (UsageLedger) RecordUsage(ctx context.Context, instanceHandle string, usage map[string]int) error {
	if err := initDB(); err != nil {
		return err
	}
	data, err := json.Marshal(usage)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO token_usage (instance_handle, prompt_tokens, completion_tokens, total_tokens, usage_json)
		VALUES (?, ?, ?, ?, ?)`,
		instanceHandle, usage["prompt_tokens"], usage["completion_tokens"], usage["total_tokens"], string(data))
	if err != nil {
		return fmt.Errorf("record usage for %s: %w", instanceHandle, err)
	}
	return nil
}

// UsageTotal is the summed usage of one plugin instance.
type UsageTotal struct {
	InstanceHandle   string
	Batches          int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func UsageTotals(ctx context.Context) ([]UsageTotal, error) {
	if err := initDB(); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT instance_handle, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		FROM token_usage
		GROUP BY instance_handle
		ORDER BY instance_handle ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []UsageTotal
	for rows.Next() {
		var u UsageTotal
		if err := rows.Scan(&u.InstanceHandle, &u.Batches, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens); err != nil {
			return nil, err
		}
		totals = append(totals, u)
	}
	return totals, rows.Err()
}

func ClearUsage(ctx context.Context) error {
	if err := initDB(); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `DELETE FROM token_usage`)
	return err
}
