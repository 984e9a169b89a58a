package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultMaxUnzipBytes caps the total uncompressed size Unzip will write.
const DefaultMaxUnzipBytes int64 = 4 << 30

// Unzip unpacks archive into destDir and returns the written paths, sorted.
// Directory entries and archiver metadata (__MACOSX, .DS_Store) are skipped.
// maxBytes <= 0 means DefaultMaxUnzipBytes.
func Unzip(archive, destDir string, maxBytes int64) ([]string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUnzipBytes
	}

	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	root := filepath.Clean(destDir)
	var written []string
	var total int64
	for _, f := range r.File {
		if f.FileInfo().IsDir() || metadataEntry(f.Name) {
			continue
		}
		dest := filepath.Join(root, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return written, eris.Errorf("zip: entry %q escapes %s", f.Name, destDir)
		}

		n, err := unzipEntry(f, dest, maxBytes-total)
		total += n
		if err != nil {
			return written, err
		}
		written = append(written, dest)
	}

	sort.Strings(written)
	return written, nil
}

func metadataEntry(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || path.Base(name) == ".DS_Store"
}

// unzipEntry writes one file, failing once more than budget bytes come out.
func unzipEntry(f *zip.File, dest string, budget int64) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, eris.Wrapf(err, "zip: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	lr := &io.LimitedReader{R: rc, N: budget + 1}
	n, err := writeFile(dest, lr)
	if err != nil {
		return n, eris.Wrapf(err, "zip: extract %s", f.Name)
	}
	if n > budget {
		os.Remove(dest) //nolint:errcheck
		return n, eris.Errorf("zip: archive exceeds size limit at %s", f.Name)
	}
	return n, nil
}
