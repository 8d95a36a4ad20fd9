package conversation

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func rankFile(tokens ...string) string {
	var out string
	for i, tok := range tokens {
		out += fmt.Sprintf("%s %d\n", base64.StdEncoding.EncodeToString([]byte(tok)), i)
	}
	return out
}

func TestBPELoader_FetchesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, rankFile("a", "b", "ab"))
	}))
	defer srv.Close()

	cache := filepath.Join(t.TempDir(), "cache")
	l := newBPELoader(time.Second, cache)
	url := srv.URL + "/cl100k_base.tiktoken"

	ranks, err := l.LoadTiktokenBpe(url)
	if err != nil {
		t.Fatalf("LoadTiktokenBpe: %v", err)
	}
	if len(ranks) != 3 || ranks["ab"] != 2 {
		t.Errorf("ranks = %v", ranks)
	}

	// Served from the cache once the server is gone.
	srv.Close()
	if _, err := l.LoadTiktokenBpe(url); err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestBPELoader_TimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	l := newBPELoader(200*time.Millisecond, "")
	start := time.Now()
	if _, err := l.LoadTiktokenBpe(srv.URL + "/ranks"); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("load took %v", elapsed)
	}
}

func TestBPELoader_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cache := t.TempDir()
	if _, err := newBPELoader(time.Second, cache).LoadTiktokenBpe(srv.URL + "/ranks"); err == nil {
		t.Fatal("expected error for 404")
	}
	entries, _ := os.ReadDir(cache)
	if len(entries) != 0 {
		t.Errorf("error response cached: %v", entries)
	}
}

func TestBPELoader_LocalFileAndBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranks.tiktoken")
	if err := os.WriteFile(path, []byte(rankFile("x", "y")), 0o600); err != nil {
		t.Fatal(err)
	}
	ranks, err := newBPELoader(0, "").LoadTiktokenBpe(path)
	if err != nil || ranks["y"] != 1 {
		t.Errorf("ranks = %v, err = %v", ranks, err)
	}

	for _, bad := range []string{"eA==\n", "!!! 1\n", "eA== one\n"} {
		if _, err := parseBPE([]byte(bad)); err == nil {
			t.Errorf("parseBPE(%q) should fail", bad)
		}
	}
}
