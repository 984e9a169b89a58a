// Package fetcher downloads raw open-data files over HTTP and FTP and
// decodes the CSV, XLSX, GeoJSON and ZIP payloads they arrive in.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Mux routes a URL to the fetcher registered for its scheme.
type Mux map[string]Fetcher

// NewMux registers h for http and https and f for ftp. Either may be nil.
func NewMux(h *HTTPFetcher, f *FTPFetcher) Mux {
	m := Mux{}
	if h != nil {
		m["http"] = h
		m["https"] = h
	}
	if f != nil {
		m["ftp"] = f
	}
	return m
}

// For returns the fetcher for rawURL's scheme.
func (m Mux) For(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %q", rawURL)
	}
	f, ok := m[u.Scheme]
	if !ok {
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
	return f, nil
}

// writeFile copies r to path through a temp file in the same directory so a
// failed download never leaves a truncated file behind.
func writeFile(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "create directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return n, eris.Wrap(err, "write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}
