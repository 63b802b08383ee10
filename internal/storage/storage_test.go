package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-run/recall/internal/model"
	"github.com/recall-run/recall/internal/storage"
	"github.com/recall-run/recall/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	db, err := tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	testDB.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func sampleSnapshot(projectPath string) model.Snapshot {
	return model.Snapshot{
		ProjectPath:  projectPath,
		Trigger:      "manual",
		MessageCount: 2,
		RawContext: model.Conversation{Messages: []model.Message{
			{Role: "user", Content: "fix the retry loop off-by-one"},
			{Role: "assistant", Content: "found it in internal/pipeline/coordinator.go"},
		}},
		Summary:        "fixed an off-by-one in the retry loop",
		Tags:           []string{"bugfix"},
		MentionedFiles: []string{"internal/pipeline/coordinator.go"},
		KeyDecisions:   []string{"retry with backoff instead of immediate resubmit"},
		BugsFixed:      []string{"off-by-one in retry loop"},
		Timestamp:      time.Now(),
	}
}

func TestPersistAndGetSnapshot(t *testing.T) {
	ctx := context.Background()
	rec := sampleSnapshot("/tmp/project-persist")

	res, err := testDB.Persist(ctx, rec)
	require.NoError(t, err)
	assert.NotZero(t, res.ID)

	got, err := testDB.GetSnapshot(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ProjectPath, got.ProjectPath)
	assert.Equal(t, rec.Summary, got.Summary)
	assert.Equal(t, rec.MentionedFiles, got.MentionedFiles)
}

func TestGetSnapshot_notFound(t *testing.T) {
	_, err := testDB.GetSnapshot(context.Background(), -1)
	require.Error(t, err)
}

func TestRewriteSummary(t *testing.T) {
	ctx := context.Background()
	res, err := testDB.Persist(ctx, sampleSnapshot("/tmp/project-rewrite"))
	require.NoError(t, err)

	newEmbedding := make([]float32, 384)
	newEmbedding[0] = 1.0
	require.NoError(t, testDB.RewriteSummary(ctx, res.ID, "a better summary", newEmbedding))

	got, err := testDB.GetSnapshot(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "a better summary", got.Summary)
}

func TestRecentSnapshots_boundsByLimit(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-recent-storage"
	for i := 0; i < 3; i++ {
		_, err := testDB.Persist(ctx, sampleSnapshot(path))
		require.NoError(t, err)
	}

	out, err := testDB.RecentSnapshots(ctx, path, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestLexicalSearch_matchesSummary(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-lexical"
	_, err := testDB.Persist(ctx, sampleSnapshot(path))
	require.NoError(t, err)

	hits, err := testDB.LexicalSearch(ctx, "off-by-one", path, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestExactPhraseSearch(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-phrase"
	_, err := testDB.Persist(ctx, sampleSnapshot(path))
	require.NoError(t, err)

	hits, err := testDB.ExactPhraseSearch(ctx, "retry with backoff instead of immediate resubmit", path, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestSemanticSearch_returnsNearestByEmbedding(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-semantic"
	rec := sampleSnapshot(path)
	rec.Embedding = make([]float32, 384)
	rec.Embedding[0] = 1.0

	res, err := testDB.Persist(ctx, rec)
	require.NoError(t, err)

	query := make([]float32, 384)
	query[0] = 1.0
	hits, err := testDB.SemanticSearch(ctx, query, path, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, res.ID, hits[0].ID)
}

func TestProjectStats(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-stats"
	_, err := testDB.Persist(ctx, sampleSnapshot(path))
	require.NoError(t, err)

	stats, err := testDB.ProjectStats(ctx, path)
	require.NoError(t, err)
	require.NotEmpty(t, stats)
	assert.Equal(t, path, stats[0].ProjectPath)
}

func TestTimeline(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-timeline"
	_, err := testDB.Persist(ctx, sampleSnapshot(path))
	require.NoError(t, err)

	rows, err := testDB.Timeline(ctx, path, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestBugs(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-bugs"
	_, err := testDB.Persist(ctx, sampleSnapshot(path))
	require.NoError(t, err)

	rows, err := testDB.Bugs(ctx, path, "", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestFileActivity(t *testing.T) {
	ctx := context.Background()
	path := "/tmp/project-files"
	_, err := testDB.Persist(ctx, sampleSnapshot(path))
	require.NoError(t, err)

	rows, err := testDB.FileActivity(ctx, path, "", 1, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestPing(t *testing.T) {
	require.NoError(t, testDB.Ping(context.Background()))
}
