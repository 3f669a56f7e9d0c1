package archive

import (
	"io"

	rardecode "github.com/javi11/rardecode/v2"
)

// rarCursor adapts rardecode's streaming reader to [streamCursor].
type rarCursor struct {
	rc *rardecode.ReadCloser
}

func openRarCursor(path string) (streamCursor, error) {
	rc, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, err
	}

	return &rarCursor{rc: rc}, nil
}

func (c *rarCursor) Next() (string, int64, bool, error) {
	hdr, err := c.rc.Next()
	if err != nil {
		return "", 0, false, err
	}

	return hdr.Name, hdr.UnPackedSize, hdr.IsDir, nil
}

func (c *rarCursor) Read(p []byte) (int, error) {
	return c.rc.Read(p)
}

func (c *rarCursor) Close() error {
	return c.rc.Close()
}

var _ io.Closer = (*rarCursor)(nil)
