package snapshot

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

const fetchJSON = `[{"lemma":"bank","id":"bank#1","gloss":"a financial institution"}]`

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	zw.Close()
	return buf.Bytes()
}

func tgzBytes(t *testing.T, name string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	if err := tw.WriteHeader(&tar.Header{Name: "README", Mode: 0644, Size: 2, Typeflag: tar.TypeReg}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	tw.Write([]byte("hi"))
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	tw.Write(data)
	tw.Close()
	zw.Close()
	return buf.Bytes()
}

func TestFetcherLocalPathUnchanged(t *testing.T) {
	f := &Fetcher{CacheDir: t.TempDir()}
	got, err := f.Ensure(context.Background(), "/data/snap.json")
	if err != nil || got != "/data/snap.json" {
		t.Fatalf("Ensure(local) = %q, %v", got, err)
	}
}

func TestFetcherDownloadsAndCaches(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/plain.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(fetchJSON))
	})
	mux.HandleFunc("/compressed.json.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipBytes(t, []byte(fetchJSON)))
	})
	mux.HandleFunc("/release.json.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tgzBytes(t, "dist/senses.json", []byte(fetchJSON)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	f := &Fetcher{CacheDir: dir, Client: srv.Client()}
	ctx := context.Background()

	for _, name := range []string{"plain.json", "compressed.json.gz", "release.json.tgz"} {
		p, err := f.Ensure(ctx, srv.URL+"/"+name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if filepath.Dir(p) != dir {
			t.Errorf("%s: cached outside cache dir: %s", name, p)
		}
		snap, err := Open(p)
		if err != nil {
			t.Fatalf("%s: open fetched snapshot: %v", name, err)
		}
		if _, ok := snap.Lookup("bank#1"); !ok {
			t.Errorf("%s: fetched snapshot missing bank#1", name)
		}
	}

	if _, err := f.Ensure(ctx, srv.URL+"/plain.json"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if hits != 1 {
		t.Errorf("cached artifact downloaded %d times", hits)
	}
}

func TestFetcherFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	dir := t.TempDir()
	f := &Fetcher{CacheDir: dir, Client: srv.Client()}

	if _, err := f.Ensure(context.Background(), srv.URL+"/missing.json"); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := f.Ensure(context.Background(), srv.URL+"/page.html"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed downloads left files behind: %v", entries)
	}
}
