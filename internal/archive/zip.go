package archive

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sys/unix"

	"github.com/benjarvis/peepfs/internal/logging"
)

// errSticky is returned by every ReadAt call against a [File] once a prior
// call on it has failed, per spec.md §4.B's "error sticky" rule.
var errSticky = errors.New("zip: stream is in an error state")

// ZipBackend implements [Backend] for the random-access ZIP format
// (spec.md §4.B). It holds a single long-lived reader per archive behind a
// TTL+capacity bounded pool, since opening a ZIP's central directory is
// comparatively expensive and the same archive is typically re-opened
// across many requests in quick succession (getattr then open then read).
type ZipBackend struct {
	pool *ttlcache.Cache[string, *pooledZip]
	log  *logging.RingBuffer
}

// pooledZip is the shared, mutex-guarded reader for one archive path. All
// operations against the archive — enumerate, entry lookups, and the reads
// performed through every [zipFile] opened from it — serialise on mu,
// mirroring the single per-archive mutex of the original libzip-based
// design (spec.md §4.B, §5).
type pooledZip struct {
	mu   sync.Mutex
	path string
	zr   *zip.ReadCloser

	byName map[string]*zip.File
	refs   atomic.Int32
}

// NewZipBackend constructs a [ZipBackend]. capacity bounds the number of
// distinct archives held open concurrently (0 selects a default derived
// from RLIMIT_NOFILE); ttl bounds how long an idle archive is kept open
// after its last reference is released.
func NewZipBackend(capacity int, ttl time.Duration, log *logging.RingBuffer) *ZipBackend {
	if capacity <= 0 {
		capacity = defaultZipPoolCapacity()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	b := &ZipBackend{log: log}

	b.pool = ttlcache.New(
		ttlcache.WithTTL[string, *pooledZip](ttl),
		ttlcache.WithCapacity[string, *pooledZip](uint64(capacity)),
	)

	b.pool.OnEviction(func(_ interface{}, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *pooledZip]) {
		pz := item.Value()
		if pz.refs.Load() != 0 {
			if b.log != nil {
				b.log.Printf("zip: evicting %s while still referenced; deferring close", pz.path)
			}

			return
		}

		if err := pz.zr.Close(); err != nil && b.log != nil {
			b.log.Printf("zip: error closing %s: %v", pz.path, err)
		}
	})

	go b.pool.Start()

	return b
}

// Stop halts the pool's background TTL sweeper and closes every archive
// currently held open. It is safe to call at most once.
func (b *ZipBackend) Stop() {
	b.pool.DeleteAll()
	b.pool.Stop()
}

func defaultZipPoolCapacity() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 64
	}

	cap := int(rlim.Cur / 8) //nolint:gocritic
	if cap < 16 {
		cap = 16
	}
	if cap > 1024 {
		cap = 1024
	}

	return cap
}

// Open implements [Backend]. It acquires a reference on the pooled reader
// for path, opening it fresh on first use.
func (b *ZipBackend) Open(path string) (Handle, error) {
	item := b.pool.Get(path, ttlcache.WithLoader(ttlcache.LoaderFunc[string, *pooledZip](
		func(c *ttlcache.Cache[string, *pooledZip], key string) *ttlcache.Item[string, *pooledZip] {
			zr, err := zip.OpenReader(key)
			if err != nil {
				return nil
			}

			pz := &pooledZip{path: key, zr: zr, byName: make(map[string]*zip.File, len(zr.File))}
			for _, f := range zr.File {
				pz.byName[f.Name] = f
			}

			return c.Set(key, pz, ttlcache.DefaultTTL)
		},
	)))
	if item == nil {
		if _, err := zip.OpenReader(path); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotArchive, path, err)
		}

		return nil, fmt.Errorf("%w: %s", ErrNotArchive, path)
	}

	pz := item.Value()
	pz.refs.Add(1)

	return &zipHandle{pz: pz}, nil
}

// zipHandle is a per-open reference to a [pooledZip].
type zipHandle struct {
	pz     *pooledZip
	closed bool
}

func (h *zipHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.pz.refs.Add(-1)

	return nil
}

// Enumerate walks all entries in index order, per spec.md §4.B: "DIR (name
// ends with /) and SEEKABLE (stored uncompressed)".
func (h *zipHandle) Enumerate(fn EnumFunc) error {
	h.pz.mu.Lock()
	defer h.pz.mu.Unlock()

	for i, f := range h.pz.zr.File {
		e := Entry{Index: int64(i), Size: int64(f.UncompressedSize64)}
		if len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/' {
			e.Flags |= FlagDir
		}
		if f.Method == zip.Store {
			e.Flags |= FlagSeekable
		}

		if err := fn(f.Name, e); err != nil {
			return err
		}
	}

	return nil
}

// EntryOpen resolves name, first verbatim then (per spec.md §4.B) retrying
// with a trailing slash for the directory form.
func (h *zipHandle) EntryOpen(name string) (Entry, error) {
	h.pz.mu.Lock()
	defer h.pz.mu.Unlock()

	f, ok := h.pz.byName[name]
	isDir := false
	if !ok {
		f, ok = h.pz.byName[name+"/"]
		isDir = ok
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	idx := h.indexOf(f)

	e := Entry{Index: int64(idx), Size: int64(f.UncompressedSize64)}
	if isDir || (len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/') {
		e.Flags |= FlagDir
	}
	if f.Method == zip.Store {
		e.Flags |= FlagSeekable
	}

	return e, nil
}

func (h *zipHandle) indexOf(target *zip.File) int {
	for i, f := range h.pz.zr.File {
		if f == target {
			return i
		}
	}

	return -1
}

// FileOpen opens entry for reading.
func (h *zipHandle) FileOpen(entry Entry) (File, error) {
	h.pz.mu.Lock()
	defer h.pz.mu.Unlock()

	if entry.Index < 0 || int(entry.Index) >= len(h.pz.zr.File) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrEntryNotFound, entry.Index)
	}

	h.pz.refs.Add(1)

	f := &zipFile{pz: h.pz, zf: h.pz.zr.File[entry.Index], entry: entry}
	if err := f.reopen(); err != nil {
		h.pz.refs.Add(-1)

		return nil, err
	}

	return f, nil
}

// zipFile implements [File], carrying out the read algorithm of spec.md
// §4.B step by step: same-offset reads pass straight through; a seekable
// member attempts a true seek; anything still behind the target rewinds
// (closes and reopens the member stream); anything still ahead reads and
// discards forward in chunks of min(size, remaining).
type zipFile struct {
	pz    *pooledZip
	zf    *zip.File
	entry Entry

	mu      sync.Mutex
	rc      io.ReadCloser
	seeker  io.Seeker
	offset  int64
	errored bool
}

func (f *zipFile) reopen() error {
	if f.rc != nil {
		_ = f.rc.Close()
		f.rc, f.seeker = nil, nil
	}

	if f.entry.Seekable() {
		if raw, err := f.zf.OpenRaw(); err == nil {
			if seeker, ok := raw.(io.Seeker); ok {
				f.rc = io.NopCloser(raw)
				f.seeker = seeker
				f.offset = 0

				return nil
			}
		}
	}

	rc, err := f.zf.Open()
	if err != nil {
		return fmt.Errorf("zip: open member %q: %w", f.zf.Name, err)
	}

	f.rc = rc
	f.offset = 0

	return nil
}

func (f *zipFile) ReadAt(p []byte, offset int64) (int, error) {
	f.pz.mu.Lock()
	defer f.pz.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.errored {
		return 0, errSticky
	}

	if offset != f.offset {
		if f.seeker != nil {
			if _, err := f.seeker.Seek(offset, io.SeekStart); err == nil {
				f.offset = offset
			}
		}

		if f.offset > offset {
			if err := f.reopen(); err != nil {
				f.errored = true

				return 0, err
			}
		}

		for f.offset < offset {
			want := offset - f.offset
			if want > int64(len(p)) {
				want = int64(len(p))
			}
			if want == 0 {
				want = 1
			}

			n, err := f.rc.Read(p[:want])
			if n <= 0 {
				f.errored = true

				return 0, fmt.Errorf("zip: forwarding to offset %d: %w", offset, errReadShort(err))
			}

			f.offset += int64(n)
		}
	}

	n, err := f.rc.Read(p)
	if n > 0 {
		f.offset += int64(n)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		f.errored = true
	}

	return n, err
}

func (f *zipFile) Close() error {
	if f.rc != nil {
		_ = f.rc.Close()
	}
	f.pz.refs.Add(-1)

	return nil
}

func errReadShort(err error) error {
	if err != nil {
		return err
	}

	return io.ErrUnexpectedEOF
}
