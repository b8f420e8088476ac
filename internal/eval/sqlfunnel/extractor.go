package sqlfunnel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/domain/schema"
	"github.com/mito-ds/mito-ai/internal/port/provider"
)

const extractorSystemPrompt = `You extract table references from SQL queries.
Given a query, list every table it reads from or writes to as a fully
qualified path. Keep the qualification exactly as written in the query.
Respond with JSON only.`

var tableListSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"tables": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"required": ["tables"]
}`)

// LLMExtractor implements Extractor over a provider adapter using a
// structured-output request.
type LLMExtractor struct {
	Provider provider.Adapter
	Model    string
}

// Tables asks the model for the query's referenced table paths.
func (e *LLMExtractor) Tables(ctx context.Context, query string) ([]string, error) {
	text, err := e.Provider.Complete(ctx, provider.Request{
		Messages: []message.Message{
			message.System(extractorSystemPrompt),
			message.User(query),
		},
		Model: e.Model,
		ResponseFormat: &schema.FormatInfo{
			Name:   "table_list",
			Schema: tableListSchema,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extract tables: %w", err)
	}
	var out struct {
		Tables []string `json:"tables"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("extract tables: bad response: %w", err)
	}
	return out.Tables, nil
}
