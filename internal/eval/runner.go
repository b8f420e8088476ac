package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	otelx "github.com/mito-ds/mito-ai/internal/adapter/otel"
	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/domain/schema"
	"github.com/mito-ds/mito-ai/internal/port/executor"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/prompt"
)

// Variant names one prompt-building strategy under evaluation. The
// production builders are one variant; experiments register more.
type Variant struct {
	Name  string
	Build func(f Fixture) []message.Message
}

// ChatVariant is the production chat prompt.
func ChatVariant() Variant {
	return Variant{
		Name:  "prod_chat",
		Build: func(f Fixture) []message.Message { return prompt.Chat(f.Notebook, f.UserInput) },
	}
}

// InlineVariant is the production inline-completion prompt.
func InlineVariant() Variant {
	return Variant{
		Name:  "prod_inline",
		Build: func(f Fixture) []message.Message { return prompt.InlineCompletion(f.Notebook, f.Prefix, f.Suffix) },
	}
}

// Result is the outcome of one fixture under one prompt variant.
type Result struct {
	Fixture string
	Prompt  string
	Passed  bool
	Notes   string
	Actual  string
}

// Runner drives fixtures through a provider and the interpreter. Every
// failure mode, including invalid generated code, produces a failed Result
// rather than an error; Run methods never abort a batch.
type Runner struct {
	Provider provider.Adapter
	Exec     executor.Executor
	Model    string
	Log      *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

// RunChat evaluates chat-style fixtures: the completion's code block is
// appended to the existing script and the resulting interpreter state must
// match the expected code's.
func (r *Runner) RunChat(ctx context.Context, fixtures []Fixture, variants []Variant) []Result {
	var results []Result
	for _, v := range variants {
		for _, f := range fixtures {
			results = append(results, r.runOne(ctx, f, v.Name, v.Build(f), func(code string) string {
				return joinScript(f.ExistingScript(), code)
			}))
		}
	}
	return results
}

// RunInline evaluates inline-completion fixtures: the completion is spliced
// between the fixture's prefix and suffix to form the active cell.
func (r *Runner) RunInline(ctx context.Context, fixtures []Fixture, variants []Variant) []Result {
	var results []Result
	for _, v := range variants {
		for _, f := range fixtures {
			f := f
			results = append(results, r.runOne(ctx, f, v.Name, v.Build(f), func(completion string) string {
				cell := f.Prefix + completion + f.Suffix
				return joinScript(f.ExistingScript(), cell)
			}))
		}
	}
	return results
}

// RunSmartDebug first executes the fixture's failing cell to capture a real
// traceback, feeds it through the smart-debug prompt, then checks that the
// proposed fix produces the expected state.
func (r *Runner) RunSmartDebug(ctx context.Context, fixtures []Fixture) []Result {
	const variantName = "prod_smart_debug"
	var results []Result
	for _, f := range fixtures {
		traceback, err := r.Exec.CaptureTraceback(ctx, joinScript(f.ExistingScript(), f.InvalidCode))
		if err != nil {
			results = append(results, Result{
				Fixture: f.Name, Prompt: variantName,
				Notes: fmt.Sprintf("traceback capture failed: %v", err),
			})
			continue
		}
		msgs := prompt.SmartDebug(f.Notebook, traceback)
		results = append(results, r.runOne(ctx, f, variantName, msgs, func(code string) string {
			return joinScript(f.ExistingScript(), code)
		}))
	}
	return results
}

// cellUpdateSchema constrains the agent find-and-update answer to exactly
// one existing cell id plus its full replacement body.
var cellUpdateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"code": {"type": "string"}
	},
	"required": ["id", "code"]
}`)

// RunAgent evaluates find-and-update fixtures. The provider must return a
// structured {id, code} naming an existing cell; the updated notebook is
// executed and compared against the expected update applied the same way.
func (r *Runner) RunAgent(ctx context.Context, fixtures []Fixture) []Result {
	const variantName = "prod_agent"
	var results []Result
	for _, f := range fixtures {
		fctx, span := otelx.StartEvalSpan(ctx, f.Name, variantName)
		results = append(results, r.runAgentOne(fctx, f, variantName))
		span.End()
	}
	return results
}

func (r *Runner) runAgentOne(ctx context.Context, f Fixture, variantName string) Result {
	res := Result{Fixture: f.Name, Prompt: variantName}
	if f.ExpectedUpdate == nil {
		res.Notes = "fixture has no expected_update"
		return res
	}

	msgs := prompt.Agent(f.Notebook, f.InitialNotebook, f.UserInput)
	text, err := r.Provider.Complete(ctx, provider.Request{
		Messages: msgs,
		Model:    r.Model,
		ResponseFormat: &schema.FormatInfo{
			Name:   "cell_update",
			Schema: cellUpdateSchema,
		},
	})
	if err != nil {
		res.Notes = fmt.Sprintf("provider: %v", err)
		return res
	}
	res.Actual = text

	var update CellUpdate
	if err := json.Unmarshal([]byte(text), &update); err != nil {
		res.Notes = fmt.Sprintf("response is not a cell update: %v", err)
		return res
	}
	if !cellExists(f.InitialNotebook, update.ID) {
		res.Notes = fmt.Sprintf("cell id %q not in the notebook", update.ID)
		return res
	}
	if update.ID != f.ExpectedUpdate.ID {
		res.Notes = fmt.Sprintf("updated cell %q, want %q", update.ID, f.ExpectedUpdate.ID)
		return res
	}

	actualScript := applyUpdate(f.InitialNotebook, update)
	expectedScript := applyUpdate(f.InitialNotebook, *f.ExpectedUpdate)
	res.Passed, res.Notes = r.compareScripts(ctx, expectedScript, actualScript, f.VariablesToCompare)
	return res
}

// runOne renders, completes, and compares one fixture. buildScript maps the
// extracted completion code onto a full runnable script.
func (r *Runner) runOne(ctx context.Context, f Fixture, variantName string, msgs []message.Message, buildScript func(code string) string) Result {
	ctx, span := otelx.StartEvalSpan(ctx, f.Name, variantName)
	defer span.End()

	res := Result{Fixture: f.Name, Prompt: variantName}

	text, err := r.Provider.Complete(ctx, provider.Request{Messages: msgs, Model: r.Model})
	if err != nil {
		res.Notes = fmt.Sprintf("provider: %v", err)
		return res
	}
	code := ExtractCode(text)
	res.Actual = code

	expectedScript := joinScript(f.ExistingScript(), f.ExpectedCode)
	res.Passed, res.Notes = r.compareScripts(ctx, expectedScript, buildScript(code), f.VariablesToCompare)
	return res
}

// compareScripts executes both scripts fresh and compares the snapshots.
func (r *Runner) compareScripts(ctx context.Context, expectedScript, actualScript string, variablesToCompare []string) (bool, string) {
	expected, err := r.Exec.Run(ctx, expectedScript)
	if err != nil {
		return false, fmt.Sprintf("expected code failed: %v", err)
	}
	actual, err := r.Exec.Run(ctx, actualScript)
	if err != nil {
		return false, fmt.Sprintf("execution failed: %v", err)
	}
	return CompareSnapshots(expected, actual, variablesToCompare)
}

// ExtractCode pulls the first fenced python block out of a completion. Text
// without a fence is treated as bare code.
func ExtractCode(text string) string {
	for _, fence := range []string{"```python", "```"} {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		rest := text[start+len(fence):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(strings.TrimPrefix(rest[:end], "\n"))
		}
	}
	return strings.TrimSpace(text)
}

func joinScript(existing, code string) string {
	if existing == "" {
		return code
	}
	return existing + "\n" + code
}

func cellExists(cells []prompt.Cell, id string) bool {
	for _, c := range cells {
		if c.ID == id {
			return true
		}
	}
	return false
}

// applyUpdate returns the runnable script of the notebook with one cell's
// body replaced. Markdown cells are skipped.
func applyUpdate(cells []prompt.Cell, update CellUpdate) string {
	var parts []string
	for _, c := range cells {
		if c.CellType != "code" && c.CellType != "" {
			continue
		}
		code := c.Code
		if c.ID == update.ID {
			code = update.Code
		}
		parts = append(parts, code)
	}
	return strings.Join(parts, "\n")
}
