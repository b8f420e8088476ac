// Package sqlfunnel implements the staged checker for SQL generation
// fixtures. Stages run in order and short-circuit on the first failure; the
// funnel itself is pure over its inputs, with table extraction delegated to
// an Extractor.
package sqlfunnel

import (
	"context"
	"fmt"
	"strings"
)

// Fixture is one SQL generation test case. ExpectedQuery nil means the model
// is expected to decline to generate SQL. Schema maps "db.schema.table" to
// its column names.
type Fixture struct {
	Name           string              `json:"name"`
	Tags           []string            `json:"tags,omitempty"`
	UserInput      string              `json:"user_input,omitempty"`
	ExpectedQuery  *string             `json:"expected_query"`
	ExpectedTables []string            `json:"expected_tables,omitempty"`
	Schema         map[string][]string `json:"schema"`
}

// StageResult is the outcome of one funnel stage.
type StageResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Notes  string `json:"notes,omitempty"`
}

// Extractor pulls the referenced table paths out of a query. Backed by an
// LLM in production; tests use a deterministic fake.
type Extractor interface {
	Tables(ctx context.Context, query string) ([]string, error)
}

// Stage names, in funnel order.
const (
	StageSQLGenerated     = "sql_generated"
	StageCorrectTables    = "correct_tables"
	StageNoHallucinations = "no_table_hallucinations"
)

// Run executes the funnel for one fixture against the generated query.
// query nil means the model produced no SQL.
func Run(ctx context.Context, f Fixture, query *string, extractor Extractor) []StageResult {
	results := []StageResult{checkGenerated(f, query)}
	if !results[len(results)-1].Passed {
		return results
	}
	if query == nil {
		// Correctly declined; nothing further to check.
		return results
	}

	tables, err := extractor.Tables(ctx, *query)
	if err != nil {
		results = append(results, StageResult{
			Name:  StageCorrectTables,
			Notes: fmt.Sprintf("table extraction failed: %v", err),
		})
		return results
	}

	results = append(results, checkCorrectTables(f, tables))
	if !results[len(results)-1].Passed {
		return results
	}

	results = append(results, checkNoHallucinations(f, tables))
	return results
}

// checkGenerated passes when the presence of a query matches the fixture's
// expectation: both absent or both present.
func checkGenerated(f Fixture, query *string) StageResult {
	res := StageResult{Name: StageSQLGenerated}
	switch {
	case f.ExpectedQuery == nil && query == nil:
		res.Passed = true
	case f.ExpectedQuery != nil && query != nil:
		res.Passed = true
	case query == nil:
		res.Notes = "no query generated but one was expected"
	default:
		res.Notes = "query generated but none was expected"
	}
	return res
}

// checkCorrectTables passes when every expected table appears among the
// referenced ones.
func checkCorrectTables(f Fixture, referenced []string) StageResult {
	res := StageResult{Name: StageCorrectTables, Passed: true}
	have := map[string]bool{}
	for _, t := range referenced {
		have[strings.ToLower(t)] = true
	}
	var missing []string
	for _, want := range f.ExpectedTables {
		if !have[strings.ToLower(want)] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		res.Passed = false
		res.Notes = "missing tables: " + strings.Join(missing, ", ")
	}
	return res
}

// checkNoHallucinations passes when every referenced table parses as
// db.schema.table and exists in the fixture's schema map.
func checkNoHallucinations(f Fixture, referenced []string) StageResult {
	res := StageResult{Name: StageNoHallucinations, Passed: true}
	known := map[string]bool{}
	for path := range f.Schema {
		known[strings.ToLower(path)] = true
	}
	var bad []string
	for _, t := range referenced {
		if strings.Count(t, ".") != 2 {
			bad = append(bad, t+" (not db.schema.table)")
			continue
		}
		if !known[strings.ToLower(t)] {
			bad = append(bad, t)
		}
	}
	if len(bad) > 0 {
		res.Passed = false
		res.Notes = "hallucinated tables: " + strings.Join(bad, ", ")
	}
	return res
}
