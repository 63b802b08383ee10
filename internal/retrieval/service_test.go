package retrieval_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/recall-run/recall/internal/embedding"
	"github.com/recall-run/recall/internal/model"
	"github.com/recall-run/recall/internal/retrieval"
	"github.com/recall-run/recall/internal/storage"
	"github.com/recall-run/recall/internal/testutil"
)

var (
	testDB  *storage.DB
	testSvc *retrieval.Service
	testTC  *testutil.TestContainer
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	testTC = tc

	logger := testutil.TestLogger()
	db, err := tc.NewTestDB(context.Background(), logger)
	if err != nil {
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db

	testSvc = retrieval.New(testDB, embedding.NewSyntheticProvider(384), nil, nil, logger)

	code := m.Run()
	tc.Terminate()
	os.Exit(code)
}

func mustPersist(t *testing.T, rec model.Snapshot) model.Snapshot {
	t.Helper()
	res, err := testDB.Persist(context.Background(), rec)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	rec.ID = res.ID
	return rec
}

func TestSearchMemory_fallsBackToLexicalWhenNoVector(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-search-memory"
	mustPersist(t, model.Snapshot{
		ProjectPath:  path,
		Trigger:      "manual",
		MessageCount: 1,
		RawContext:   model.Conversation{Messages: []model.Message{{Role: "user", Content: "investigate the flaky retry loop"}}},
		Summary:      "investigate the flaky retry loop",
	})

	results, err := testSvc.SearchMemory(ctx, "flaky retry loop", path, 5)
	if err != nil {
		t.Fatalf("search memory: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one hit for lexical fallback")
	}
}

func TestRecentSnapshots_boundsAndOrders(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-recent"
	for i := 0; i < 3; i++ {
		mustPersist(t, model.Snapshot{
			ProjectPath:  path,
			Trigger:      "manual",
			MessageCount: 1,
			RawContext:   model.Conversation{Messages: []model.Message{{Role: "user", Content: "hello"}}},
			Timestamp:    time.Now(),
		})
	}

	out, err := testSvc.RecentSnapshots(ctx, path, 2)
	if err != nil {
		t.Fatalf("recent snapshots: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected limit to bound results to 2, got %d", len(out))
	}
	if out[0].Timestamp.Before(out[1].Timestamp) {
		t.Fatalf("expected newest first, got %v before %v", out[0].Timestamp, out[1].Timestamp)
	}
}

func TestGetSnapshot_notFound(t *testing.T) {
	_, err := testSvc.GetSnapshot(context.Background(), 9_999_999)
	if err != model.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSystemStatus_reportsStoreReachableWithNoSearcher(t *testing.T) {
	status := testSvc.SystemStatus(context.Background())
	if !status.StoreReachable {
		t.Fatalf("expected store to be reachable")
	}
	if status.SearchIndexUsed {
		t.Fatalf("expected SearchIndexUsed=false when no searcher configured")
	}
}

func TestEmbedQuery_returnsSyntheticVectorOfConfiguredDimension(t *testing.T) {
	vec, err := testSvc.EmbedQuery(context.Background(), "some query text")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	if len(vec) != 384 {
		t.Fatalf("expected 384 dimensions, got %d", len(vec))
	}
}

func TestGetQualityReport_returnsBuckets(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-quality"
	mustPersist(t, model.Snapshot{
		ProjectPath:  path,
		Trigger:      "manual",
		MessageCount: 20,
		RawContext:   model.Conversation{Messages: []model.Message{{Role: "user", Content: "hello"}}},
		Summary:      "a detailed summary of substantial work done",
		Tags:         []string{"backend", "bugfix"},
		KeyDecisions: []string{"switched to exponential backoff"},
	})

	_, buckets, err := testSvc.GetQualityReport(ctx, path, 0, 10)
	if err != nil {
		t.Fatalf("quality report: %v", err)
	}
	if buckets.High+buckets.Medium+buckets.Low == 0 {
		t.Fatalf("expected at least one scored snapshot in the buckets")
	}
}
