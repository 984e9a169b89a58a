package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source is one raw file to download.
type Source struct {
	Name    string
	URL     string
	Dest    string // relative to the downloader root
	Extract bool   // Dest names a directory the ZIP archive is unpacked into
}

// Result reports what Get did for one source.
type Result struct {
	Name      string
	Path      string
	Bytes     int64
	Skipped   bool
	Extracted []string
}

// Downloader places sources under a root directory.
type Downloader struct {
	mux     Mux
	root    string
	tempDir string
	force   bool
}

// NewDownloader creates a Downloader. Archives are staged in tempDir before
// extraction; existing targets are re-downloaded only when force is set.
func NewDownloader(mux Mux, root, tempDir string, force bool) *Downloader {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Downloader{mux: mux, root: root, tempDir: tempDir, force: force}
}

// Get downloads one source.
func (d *Downloader) Get(ctx context.Context, src Source) (Result, error) {
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("source", src.Name))
	res := Result{Name: src.Name, Path: filepath.Join(d.root, src.Dest)}

	if !d.force && present(res.Path, src.Extract) {
		log.Info("source already present, skipping", zap.String("path", res.Path))
		res.Skipped = true
		return res, nil
	}

	f, err := d.mux.For(src.URL)
	if err != nil {
		return res, err
	}

	if !src.Extract {
		res.Bytes, err = f.DownloadToFile(ctx, src.URL, res.Path)
		if err != nil {
			return res, eris.Wrapf(err, "fetcher: download %s", src.Name)
		}
		log.Info("downloaded", zap.String("path", res.Path), zap.Int64("bytes", res.Bytes))
		return res, nil
	}

	archive := filepath.Join(d.tempDir, src.Name+"-"+archiveName(src.URL))
	defer os.Remove(archive) //nolint:errcheck

	res.Bytes, err = f.DownloadToFile(ctx, src.URL, archive)
	if err != nil {
		return res, eris.Wrapf(err, "fetcher: download %s", src.Name)
	}
	if err := os.MkdirAll(res.Path, 0o755); err != nil {
		return res, eris.Wrapf(err, "fetcher: create %s", res.Path)
	}
	res.Extracted, err = Unzip(archive, res.Path, 0)
	if err != nil {
		return res, eris.Wrapf(err, "fetcher: extract %s", src.Name)
	}
	log.Info("downloaded and extracted",
		zap.String("path", res.Path),
		zap.Int64("bytes", res.Bytes),
		zap.Int("files", len(res.Extracted)),
	)
	return res, nil
}

// GetAll downloads sources concurrently, at most limit at a time. Results
// keep the order of srcs.
func (d *Downloader) GetAll(ctx context.Context, srcs []Source, limit int) ([]Result, error) {
	results := make([]Result, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, src := range srcs {
		g.Go(func() error {
			res, err := d.Get(gctx, src)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func present(p string, dir bool) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	if dir {
		entries, err := os.ReadDir(p)
		return err == nil && info.IsDir() && len(entries) > 0
	}
	return !info.IsDir() && info.Size() > 0
}

func archiveName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return "archive.zip"
}
