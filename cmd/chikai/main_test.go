package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/chikai/internal/config"
	"github.com/hyperjump/chikai/internal/ingest"
	"github.com/hyperjump/chikai/internal/models"
	"github.com/hyperjump/chikai/internal/server"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after id are moved first",
			args:     []string{"jazz-1", "-k", "5"},
			expected: []string{"-k", "5", "jazz-1"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-k", "5", "jazz-1"},
			expected: []string{"-k", "5", "jazz-1"},
		},
		{
			name:     "positional only returns unchanged",
			args:     []string{"outdoor concert"},
			expected: []string{"outdoor concert"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"outdoor", "concert", "-output", "json"},
			expected: []string{"-output", "json", "outdoor", "concert"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQueryText(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"jazz"}, "jazz"},
		{"multiple words", []string{"jazz", "brunch"}, "jazz brunch"},
		{"quoted phrase", []string{"jazz brunch"}, "jazz brunch"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQueryText(tt.args); got != tt.expected {
				t.Errorf("buildQueryText(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseVector(t *testing.T) {
	tests := []struct {
		in      string
		want    []float32
		wantErr bool
	}{
		{"0.5,1,-2", []float32{0.5, 1, -2}, false},
		{" 1 , 2 ,", []float32{1, 2}, false},
		{"1,abc", nil, true},
		{"", nil, true},
		{" , ", nil, true},
	}
	for _, tt := range tests {
		got, err := parseVector(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseVector(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseVector(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestForestOptions(t *testing.T) {
	cfg := &config.IndexConfig{TreeCount: 4, MaxDepth: 2}
	opts, err := forestOptions(cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 3 {
		t.Errorf("expected 3 options without seed, workers, or metrics, got %d", len(opts))
	}

	cfg.Seed, cfg.Workers = 42, 2
	opts, err = forestOptions(cfg, zap.NewNop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 6 {
		t.Errorf("expected 6 options, got %d", len(opts))
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
index:
  tree_count: 6
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 || cfg.Index.TreeCount != 6 {
		t.Errorf("unexpected config: %+v %+v", cfg.Server, cfg.Index)
	}
}

func writeTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./events.db"
  catalog_index_path: "./catalog"
embedding:
  model_path: "./missing.onnx"
  dimensions: 16
index:
  tree_count: 8
  seed: 5
  default_k: 3
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeFeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	feed := `{"id":"jazz-1","title":"Jazz Night","venue":"The Lyric","category":"Concerts & Music"}
{"id":"jazz-2","title":"Late Jazz Night","venue":"The Lyric","category":"Concerts & Music"}
{"id":"fb-1","title":"Hokies Football","venue":"Lane Stadium","category":"Live Sports Events"}
`
	if err := os.WriteFile(path, []byte(feed), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDirectMode(t *testing.T) {
	cfg := writeTestConfig(t)
	ctx := context.Background()

	components, err := initializeComponents(cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	res, err := ingest.NewImporter(components.Service, nil).ImportFile(ctx, writeFeed(t))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 3 {
		t.Fatalf("imported %d events", res.Imported)
	}
	components.Close()

	// A fresh process sees the stored events and builds its own index.
	components, err = initializeComponents(cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer components.Close()
	if err := prepareIndex(ctx, components.Service); err != nil {
		t.Fatalf("prepareIndex: %v", err)
	}
	st, err := components.Service.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Events != 3 || st.IndexedItems != 3 || !st.Built || st.TreeCount != 8 {
		t.Errorf("unexpected status: %+v", st)
	}
	resp, err := components.Service.Neighbors(ctx, &models.NeighborQuery{ID: "jazz-1"})
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	for _, n := range resp.Results {
		if n.ID == "jazz-1" {
			t.Error("event listed as its own neighbor")
		}
	}
}

func TestRemoteMode(t *testing.T) {
	cfg := writeTestConfig(t)
	ctx := context.Background()
	components, err := initializeComponents(cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	defer components.Close()

	srv := server.NewServer(components.Service, &cfg.Server, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	client := newAPIClient(ts.URL + "/")

	res, err := ingest.NewImporter(client, nil).ImportFile(ctx, writeFeed(t))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 3 || res.Failed != 0 {
		t.Fatalf("import result: %+v", res)
	}

	if _, err := client.Similar(ctx, "jazz-1", 2); err == nil {
		t.Error("expected an error before the index is built")
	}

	st, err := client.Build(ctx)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !st.Built || st.IndexedItems != 3 {
		t.Errorf("unexpected status after build: %+v", st)
	}

	resp, err := client.Similar(ctx, "jazz-1", 2)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if resp.Query.ID != "jazz-1" || resp.Query.K != 2 {
		t.Errorf("unexpected echoed query: %+v", resp.Query)
	}

	resp, err = client.Neighbors(ctx, &models.NeighborQuery{Text: "jazz night", K: 3})
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if resp.Total != len(resp.Results) {
		t.Errorf("total %d does not match %d results", resp.Total, len(resp.Results))
	}

	hits, err := client.SearchCatalog(ctx, "football", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "fb-1" {
		t.Errorf("unexpected catalog hits: %+v", hits)
	}

	if err := client.Delete(ctx, "fb-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := client.Delete(ctx, "fb-1"); err == nil {
		t.Error("expected an error deleting a missing event")
	}

	st, err = client.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Events != 2 {
		t.Errorf("expected 2 events after delete, got %d", st.Events)
	}
}

func TestAPIClient_RetriesGatewayErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"events": 7, "index_type": "forest", "built": true}`))
	}))
	defer ts.Close()

	client := newAPIClient(ts.URL)
	client.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	st, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Events != 7 || calls != 3 {
		t.Errorf("events = %d after %d calls", st.Events, calls)
	}
}

func TestAPIClient_APIErrorsAreNotRetried(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "event not found"}`))
	}))
	defer ts.Close()

	client := newAPIClient(ts.URL)
	client.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	_, err := client.Similar(context.Background(), "missing", 3)
	if err == nil || !strings.Contains(err.Error(), "event not found") {
		t.Fatalf("expected the API error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
