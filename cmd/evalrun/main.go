// Command evalrun drives the offline evaluation harness: it loads fixtures,
// runs them through the production prompts against the configured provider,
// executes the generated code, and prints a per-prompt results table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mito-ds/mito-ai/internal/adapter/postgres"
	"github.com/mito-ds/mito-ai/internal/adapter/pyexec"
	"github.com/mito-ds/mito-ai/internal/config"
	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/eval"
	"github.com/mito-ds/mito-ai/internal/eval/sqlfunnel"
	"github.com/mito-ds/mito-ai/internal/logger"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/quota"
	"github.com/mito-ds/mito-ai/internal/service"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "evalrun:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		testType    = flag.String("test_type", "chat", "chat | inline_code_completion | smart_debug | agent | sql")
		testName    = flag.String("test", "", "run only the fixture with this name")
		promptName  = flag.String("prompt", "", "run only this prompt variant")
		tagsFlag    = flag.String("tags", "", "comma-separated tags a fixture must carry")
		model       = flag.String("model", "", "model id (defaults to the configured chat model)")
		fixtureDir  = flag.String("fixtures", "evals/fixtures", "directory of fixture JSON files")
		archiveFlag = flag.Bool("archive", false, "archive results to the configured eval database")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	if *model == "" {
		*model = cfg.Providers.Model
	}
	var tags []string
	if *tagsFlag != "" {
		tags = strings.Split(*tagsFlag, ",")
	}

	ctx := context.Background()

	gate, err := quota.New(cfg.UserFile(), quota.Policy{
		MaxChatUsages:    cfg.Quota.MaxChatUsages,
		MaxAutocompletes: cfg.Quota.MaxAutocompletes,
		Pro:              cfg.Quota.Pro,
		Enterprise:       cfg.Quota.Enterprise,
	}, log)
	if err != nil {
		return fmt.Errorf("quota: %w", err)
	}
	route, err := service.SelectProvider(ctx, cfg, gate, log)
	if err != nil {
		return err
	}

	runner := &eval.Runner{
		Provider: route.Adapter,
		Exec:     &pyexec.Executor{},
		Model:    *model,
		Log:      log,
	}

	var results []eval.Result
	switch *testType {
	case "sql":
		return runSQL(ctx, route.Adapter, *model, *fixtureDir, *testName, tags)
	case "chat", "inline_code_completion", "smart_debug", "agent":
		fixtures, err := eval.LoadDir(*fixtureDir)
		if err != nil {
			return err
		}
		fixtures = eval.Filter(fixtures, *testName, tags)
		if len(fixtures) == 0 {
			return fmt.Errorf("no fixtures match")
		}
		switch *testType {
		case "chat":
			results = runner.RunChat(ctx, fixtures, selectVariants(*promptName, eval.ChatVariant()))
		case "inline_code_completion":
			results = runner.RunInline(ctx, fixtures, selectVariants(*promptName, eval.InlineVariant()))
		case "smart_debug":
			results = runner.RunSmartDebug(ctx, fixtures)
		case "agent":
			results = runner.RunAgent(ctx, fixtures)
		}
	default:
		return fmt.Errorf("unknown test_type %q", *testType)
	}

	eval.PrintTable(os.Stdout, results)

	if *archiveFlag {
		if cfg.EvalDB.DSN == "" {
			return fmt.Errorf("archive requested but no eval database configured")
		}
		if err := archive(ctx, cfg.EvalDB.DSN, *testType, *model, results); err != nil {
			return err
		}
	}
	return nil
}

// selectVariants filters the built-in variants by name; empty keeps all.
func selectVariants(name string, all ...eval.Variant) []eval.Variant {
	if name == "" {
		return all
	}
	var out []eval.Variant
	for _, v := range all {
		if v.Name == name {
			out = append(out, v)
		}
	}
	return out
}

func archive(ctx context.Context, dsn, testType, model string, results []eval.Result) error {
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("eval db: %w", err)
	}
	defer pool.Close()

	byPrompt := map[string][]eval.Result{}
	for _, res := range results {
		byPrompt[res.Prompt] = append(byPrompt[res.Prompt], res)
	}
	store := postgres.NewStore(pool)
	for promptName, group := range byPrompt {
		runID, err := store.ArchiveRun(ctx, testType, model, promptName, group)
		if err != nil {
			return err
		}
		fmt.Printf("archived %s as run %s\n", promptName, runID)
	}
	return nil
}

const sqlSystemPrompt = `You are a SQL analyst. Given the available tables and a
question, respond with one fenced sql block containing a single query. Always
qualify tables fully as db.schema.table. If the question cannot be answered
with SQL over these tables, respond with exactly NO_SQL.`

// runSQL generates a query per fixture and pushes it through the funnel.
func runSQL(ctx context.Context, adapter provider.Adapter, model, dir, name string, tags []string) error {
	fixtures, err := loadSQLFixtures(dir)
	if err != nil {
		return err
	}

	extractor := &sqlfunnel.LLMExtractor{Provider: adapter, Model: model}
	failed := 0
	for _, f := range fixtures {
		if name != "" && f.Name != name {
			continue
		}
		if !matchesTags(f.Tags, tags) {
			continue
		}

		query, err := generateSQL(ctx, adapter, model, f)
		if err != nil {
			fmt.Printf("%s: generation failed: %v\n", f.Name, err)
			failed++
			continue
		}

		stages := sqlfunnel.Run(ctx, f, query, extractor)
		last := stages[len(stages)-1]
		if !last.Passed {
			failed++
		}
		fmt.Printf("%s:\n", f.Name)
		for _, st := range stages {
			mark := "PASS"
			if !st.Passed {
				mark = "FAIL"
			}
			fmt.Printf("  %-28s %s  %s\n", st.Name, mark, st.Notes)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d fixtures failed", failed)
	}
	return nil
}

func generateSQL(ctx context.Context, adapter provider.Adapter, model string, f sqlfunnel.Fixture) (*string, error) {
	tables := make([]string, 0, len(f.Schema))
	for path, cols := range f.Schema {
		tables = append(tables, fmt.Sprintf("%s (%s)", path, strings.Join(cols, ", ")))
	}
	sort.Strings(tables)

	text, err := adapter.Complete(ctx, provider.Request{
		Messages: []message.Message{
			message.System(sqlSystemPrompt),
			message.User("Tables:\n" + strings.Join(tables, "\n") + "\n\nQuestion: " + f.UserInput),
		},
		Model: model,
	})
	if err != nil {
		return nil, err
	}
	if strings.Contains(text, "NO_SQL") {
		return nil, nil
	}
	query := extractSQL(text)
	return &query, nil
}

func extractSQL(text string) string {
	for _, fence := range []string{"```sql", "```"} {
		if start := strings.Index(text, fence); start >= 0 {
			rest := text[start+len(fence):]
			if end := strings.Index(rest, "```"); end >= 0 {
				return strings.TrimSpace(rest[:end])
			}
		}
	}
	return strings.TrimSpace(text)
}

func loadSQLFixtures(dir string) ([]sqlfunnel.Fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}
	var fixtures []sqlfunnel.Fixture
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return nil, err
		}
		var f sqlfunnel.Fixture
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse fixture %s: %w", entry.Name(), err)
		}
		if f.Name == "" {
			f.Name = strings.TrimSuffix(entry.Name(), ".json")
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

func matchesTags(have, want []string) bool {
	for _, tag := range want {
		found := false
		for _, h := range have {
			if h == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
