package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/recall-run/recall/internal/embedding"
	"github.com/recall-run/recall/internal/model"
	"github.com/recall-run/recall/internal/pipeline"
	"github.com/recall-run/recall/internal/retrieval"
	"github.com/recall-run/recall/internal/server"
	"github.com/recall-run/recall/internal/storage"
	"github.com/recall-run/recall/internal/summarize"
	"github.com/recall-run/recall/internal/testutil"
)

var (
	testSrv *httptest.Server
	testTC  *testutil.TestContainer
	testDB  *storage.DB
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

	embedder := embedding.NewSyntheticProvider(384)
	summarizer := summarize.New(nil, false, summarize.SampleConfig{FirstN: 20, MiddleN: 30, LastN: 50})
	coord := pipeline.New(db, summarizer, embedder, 2, 16, logger)
	retrievalSvc := retrieval.New(db, embedder, nil, coord, logger)

	srv := server.New(server.Config{
		DB:                  db,
		Coordinator:         coord,
		RetrievalSvc:        retrievalSvc,
		Logger:              logger,
		Port:                0,
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	testSrv = httptest.NewServer(srv.Handler())

	code := m.Run()
	testSrv.Close()
	coord.Shutdown(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(testSrv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/health")
	if err != nil {
		t.Fatalf("get /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCapture_acceptsAndPersists(t *testing.T) {
	resp := postJSON(t, "/capture", model.CaptureRequest{
		ProjectPath: "Code/demo",
		Trigger:     "manual",
		ConversationData: &model.Conversation{
			Messages: []model.Message{
				{Role: "user", Content: "fix the SQL injection in login"},
				{Role: "assistant", Content: "patched src/auth.js line 42; added tests in test/auth.test.js"},
			},
		},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var out model.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Meta.RequestID == "" {
		t.Fatalf("expected a request id in the response envelope")
	}
}

func TestCapture_rejectsMissingConversationSource(t *testing.T) {
	resp := postJSON(t, "/capture", model.CaptureRequest{
		ProjectPath: "Code/demo",
		Trigger:     "manual",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEmbed_returnsConfiguredDimension(t *testing.T) {
	resp := postJSON(t, "/embed", model.EmbedRequest{Text: "hello world"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Data model.EmbedResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data.Dimensions != 384 {
		t.Fatalf("expected 384 dimensions, got %d", out.Data.Dimensions)
	}
}

func TestRecentSnapshots_returnsOK(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/api/recent?limit=5")
	if err != nil {
		t.Fatalf("get /api/recent: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
