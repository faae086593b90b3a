package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) onImport(_ context.Context, path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".json", ".jsonl"}, rec.onImport, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	feed := filepath.Join(dir, "feed.jsonl")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(feed, []byte(`{"id":"a","title":"A"}`+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) >= 1 })
	time.Sleep(200 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 || got[0] != feed {
		t.Errorf("expected a single debounced import of %s, got %v", feed, got)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.json", []string{".json"}, true},
		{"/a/b.JSONL", []string{"jsonl"}, true},
		{"/a/b.csv", []string{".json"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestWatcher_SyncExistingFiles_skipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.jsonl", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.json"), 0755); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".json", ".jsonl"}, rec.onImport)
	w.SyncExistingFiles()
	got := rec.snapshot()
	want := []string{filepath.Join(dir, "a.jsonl"), filepath.Join(dir, "b.json")}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("first sync imported %v, want %v", got, want)
	}

	w.SyncExistingFiles()
	if n := len(rec.snapshot()); n != 2 {
		t.Errorf("unchanged files should not be re-imported, got %d imports", n)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte("[] "), 0644); err != nil {
		t.Fatal(err)
	}
	w.SyncExistingFiles()
	if n := len(rec.snapshot()); n != 3 {
		t.Errorf("changed file should be re-imported, got %d imports", n)
	}
}

func TestWatcher_Start_createsMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "feeds", "incoming")
	w := NewWatcher([]string{dir}, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected %s to be created: %v", dir, err)
	}
	w.Stop()
	w.Stop()
}
