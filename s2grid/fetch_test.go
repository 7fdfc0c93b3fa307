package s2grid

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetcher_HTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	f := NewFetcher(5*time.Second, "")

	data, err := f.Fetch(server.URL + "/grid.kml")
	if err != nil {
		t.Fatalf("Fetch failed, %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("Fetch() = %q, want %q", data, "payload")
	}
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("eventually"))
	}))
	defer server.Close()

	f := NewFetcher(5*time.Second, "")

	data, err := f.Fetch(server.URL + "/grid.kml")
	if err != nil {
		t.Fatalf("Fetch failed, %v", err)
	}
	if string(data) != "eventually" {
		t.Fatalf("Fetch() = %q, want %q", data, "eventually")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("server saw %d requests, want 3", got)
	}
}

func TestFetcher_FailsOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(5*time.Second, "")

	if _, err := f.Fetch(server.URL + "/missing.kml"); err == nil {
		t.Fatal("expected an error for a 404")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("server saw %d requests, want 1 (no retry on 4xx)", got)
	}
}

func TestFetcher_CacheSkipsDownload(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("remote"))
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	f := NewFetcher(5*time.Second, cacheDir)
	source := server.URL + "/grid.kml"

	first, err := f.Fetch(source)
	if err != nil {
		t.Fatalf("first Fetch failed, %v", err)
	}
	if string(first) != "remote" {
		t.Fatalf("first Fetch() = %q, want %q", first, "remote")
	}

	cached, err := os.ReadFile(filepath.Join(cacheDir, "grid.kml"))
	if err != nil {
		t.Fatalf("cache file missing, %v", err)
	}
	if string(cached) != "remote" {
		t.Fatalf("cache holds %q, want %q", cached, "remote")
	}

	second, err := f.Fetch(source)
	if err != nil {
		t.Fatalf("second Fetch failed, %v", err)
	}
	if string(second) != "remote" {
		t.Fatalf("second Fetch() = %q, want %q", second, "remote")
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("server saw %d requests, want 1 (second fetch from cache)", got)
	}
}

func TestFetcher_LocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "land.geojson")
	if err := os.WriteFile(path, []byte("local"), 0644); err != nil {
		t.Fatalf("failed to write fixture, %v", err)
	}

	f := NewFetcher(5*time.Second, "")

	t.Run("bare path", func(t *testing.T) {
		data, err := f.Fetch(path)
		if err != nil {
			t.Fatalf("Fetch failed, %v", err)
		}
		if string(data) != "local" {
			t.Fatalf("Fetch() = %q, want %q", data, "local")
		}
	})

	t.Run("file scheme", func(t *testing.T) {
		data, err := f.Fetch("file://" + path)
		if err != nil {
			t.Fatalf("Fetch failed, %v", err)
		}
		if string(data) != "local" {
			t.Fatalf("Fetch() = %q, want %q", data, "local")
		}
	})
}
