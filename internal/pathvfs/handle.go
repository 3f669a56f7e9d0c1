package pathvfs

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/benjarvis/peepfs/internal/archive"
)

var (
	_ fileHandle = (*passthroughHandle)(nil)
	_ fileHandle = (*archiveFileHandle)(nil)
)

// fileHandle is the common surface [vnode.Open] returns, satisfied by
// both kinds of open file this filesystem serves. It also implements
// [fs.HandleReader] and [fs.HandleReleaser], the methods bazil.org/fuse
// actually dispatches a read/release request through; ReadAt/Close remain
// for tests and for Read/Release to delegate to.
type fileHandle interface {
	fs.HandleReader
	fs.HandleReleaser
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// passthroughHandle serves a real, on-disk file outside any archive view;
// reads go straight to the backing *os.File.
type passthroughHandle struct {
	f *os.File
}

func (h *passthroughHandle) ReadAt(p []byte, off int64) (int, error) {
	return h.f.ReadAt(p, off)
}

func (h *passthroughHandle) Close() error {
	return h.f.Close()
}

func (h *passthroughHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)

	n, err := h.ReadAt(buf, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return toFuseErrno(translateOSErr(err))
	}

	resp.Data = buf[:n]

	return nil
}

func (h *passthroughHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	if err := h.Close(); err != nil {
		return toFuseErrno(translateOSErr(err))
	}

	return nil
}

// archiveFileHandle serves a member inside an archive view. Reads are
// forwarded to the backend's [archive.File], which owns whatever
// seek-emulation algorithm its format requires (spec.md §4.B/§4.C); this
// handle's only job is to own that reader's lifetime and feed the
// dashboard's extract metrics.
type archiveFileHandle struct {
	fsys   *FS
	mu     sync.Mutex
	handle archive.Handle
	file   archive.File
}

func (h *archiveFileHandle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()

	n, err := h.file.ReadAt(p, off)

	h.fsys.Metrics.TotalExtractTime.Add(int64(time.Since(start)))
	h.fsys.Metrics.TotalExtractCount.Add(1)
	h.fsys.Metrics.TotalExtractBytes.Add(int64(n))

	return n, err
}

func (h *archiveFileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.file.Close()
	if cerr := h.handle.Close(); err == nil {
		err = cerr
	}

	h.fsys.Metrics.OpenArchives.Add(-1)
	h.fsys.Metrics.TotalClosedArchives.Add(1)

	return err
}

func (h *archiveFileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)

	n, err := h.ReadAt(buf, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return toFuseErrno(errBackend(err))
	}

	resp.Data = buf[:n]

	return nil
}

func (h *archiveFileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	if err := h.Close(); err != nil {
		return toFuseErrno(errBackend(err))
	}

	return nil
}
