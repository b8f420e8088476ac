package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/mito-ds/mito-ai/internal/eval"
)

// testStore connects to Postgres or skips if DATABASE_URL is not set.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func TestArchiveAndReadBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	results := []eval.Result{
		{Fixture: "create_variable_x", Prompt: "prod_chat", Passed: true},
		{Fixture: "filter_dataframe", Prompt: "prod_chat", Passed: false, Notes: `"df" not defined`, Actual: "df2 = df"},
	}

	runID, err := s.ArchiveRun(ctx, "chat", "gpt-5", "prod_chat", results)
	if err != nil {
		t.Fatalf("ArchiveRun: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	var found *Run
	for i := range runs {
		if runs[i].ID == runID {
			found = &runs[i]
		}
	}
	if found == nil {
		t.Fatalf("run %s not listed", runID)
	}
	if found.Total != 2 || found.Passed != 1 {
		t.Errorf("run totals = %d/%d, want 1/2", found.Passed, found.Total)
	}

	got, err := s.Results(ctx, runID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[1].Fixture != "filter_dataframe" || got[1].Passed || got[1].Notes == "" {
		t.Errorf("result = %+v", got[1])
	}
}

func TestResultsUnknownRun(t *testing.T) {
	s := testStore(t)

	if _, err := s.Results(context.Background(), "00000000-0000-0000-0000-000000000000"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
