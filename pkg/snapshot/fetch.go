package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// IsRemote reports whether src is an http(s) URL.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetcher downloads remote snapshot artifacts into a cache directory.
type Fetcher struct {
	CacheDir string
	Client   *http.Client
}

// Ensure makes src available as a local file and returns its path. Local paths
// are returned unchanged. A remote artifact already present in the cache is
// not downloaded again. Artifacts ending in .gz are decompressed; .tgz and
// .tar.gz archives yield their first snapshot file.
func (f *Fetcher) Ensure(ctx context.Context, src string) (string, error) {
	if !IsRemote(src) {
		return src, nil
	}
	u, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	name, kind := artifactName(path.Base(u.Path))
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, src)
	}

	dir := f.CacheDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "lexigraph")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "lexigraph")
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download snapshot: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(dir, name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := extract(tmp, resp.Body, kind); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}
	return dest, nil
}

type archiveKind int

const (
	plain archiveKind = iota
	gzipped
	tarball
)

// artifactName maps a downloaded file name to the cached snapshot name.
func artifactName(base string) (string, archiveKind) {
	lower := strings.ToLower(base)
	switch {
	case strings.HasSuffix(lower, ".tgz"):
		return snapshotExt(base[:len(base)-len(".tgz")]), tarball
	case strings.HasSuffix(lower, ".tar.gz"):
		return snapshotExt(base[:len(base)-len(".tar.gz")]), tarball
	case strings.HasSuffix(lower, ".gz"):
		return snapshotExt(base[:len(base)-len(".gz")]), gzipped
	}
	return snapshotExt(base), plain
}

func snapshotExt(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".db", ".sqlite", ".sqlite3":
		return name
	}
	return ""
}

func extract(dst io.Writer, body io.Reader, kind archiveKind) error {
	if kind == plain {
		_, err := io.Copy(dst, body)
		return err
	}
	gz, err := gzip.NewReader(body)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	if kind == gzipped {
		_, err := io.Copy(dst, gz)
		return err
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return errors.New("no snapshot file found in archive")
		}
		if err != nil {
			return fmt.Errorf("error reading tar archive: %w", err)
		}
		if header.Typeflag == tar.TypeReg && snapshotExt(path.Base(header.Name)) != "" {
			_, err := io.Copy(dst, tr)
			return err
		}
	}
}
