package archive

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// tarCursor adapts archive/tar to [streamCursor], layering the appropriate
// decompressor (gzip, bzip2, xz, or none) over the raw file by suffix.
type tarCursor struct {
	f       *os.File
	closers []io.Closer
	tr      *tar.Reader
}

func openTarCursor(path string) (streamCursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var r io.Reader = f
	closers := []io.Closer{f}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			closeAll(closers)

			return nil, fmt.Errorf("tar: gzip: %w", err)
		}
		closers = append(closers, gz)
		r = gz

	case strings.HasSuffix(lower, ".tar.bz2"):
		r = bzip2.NewReader(r)

	case strings.HasSuffix(lower, ".tar.xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			closeAll(closers)

			return nil, fmt.Errorf("tar: xz: %w", err)
		}
		r = xr

	case strings.HasSuffix(lower, ".tar"):
		// no compression

	default:
		closeAll(closers)

		return nil, fmt.Errorf("%w: unrecognised tar suffix %s", ErrNotArchive, path)
	}

	return &tarCursor{f: f, closers: closers, tr: tar.NewReader(r)}, nil
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
}

func (c *tarCursor) Next() (string, int64, bool, error) {
	hdr, err := c.tr.Next()
	if err != nil {
		return "", 0, false, err
	}

	return hdr.Name, hdr.Size, hdr.Typeflag == tar.TypeDir, nil
}

func (c *tarCursor) Read(p []byte) (int, error) {
	return c.tr.Read(p)
}

func (c *tarCursor) Close() error {
	closeAll(c.closers)

	return nil
}
