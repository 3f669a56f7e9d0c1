package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// streamCursor is a forward-only view over one archive's members, used to
// implement the streaming backend of spec.md §4.C: "every operation that
// needs to inspect contents performs a fresh open, optionally
// fast-forwarding... until the desired ordinal index is reached." Each
// concrete archive format (tar family, rar, iso, cab) implements this
// uniformly so the backend logic below stays format-agnostic.
type streamCursor interface {
	// Next advances to the next member, returning io.EOF once exhausted.
	Next() (name string, size int64, dir bool, err error)
	// Read reads from the current member's data, as returned by the most
	// recent successful Next call.
	Read(p []byte) (int, error)
	Close() error
}

type cursorOpener func(path string) (streamCursor, error)

// StreamBackend implements [Backend] for the generic, forward-only archive
// family (spec.md §4.C): tar and its compressed variants, ISO9660, RAR and
// MS-CAB. Per-archive state held between calls is only the filename; every
// operation re-opens the underlying file.
type StreamBackend struct {
	openers map[string]cursorOpener
}

// NewStreamBackend builds the default [StreamBackend], with one opener per
// recognised streaming-family suffix.
func NewStreamBackend() *StreamBackend {
	return &StreamBackend{
		openers: map[string]cursorOpener{
			".tar.gz":  openTarCursor,
			".tar.bz2": openTarCursor,
			".tar.xz":  openTarCursor,
			".tgz":     openTarCursor,
			".tar":     openTarCursor,
			".rar":     openRarCursor,
			".iso":     openISOCursor,
			".cab":     openCABCursor,
		},
	}
}

func (b *StreamBackend) openerFor(path string) (cursorOpener, error) {
	lower := strings.ToLower(path)

	// Longest-suffix-first so ".tar.gz" is not mistaken for a bare ".gz"
	// (which this backend does not otherwise recognise).
	var best string
	var bestOpener cursorOpener
	for suf, fn := range b.openers {
		if strings.HasSuffix(lower, suf) && len(suf) > len(best) {
			best, bestOpener = suf, fn
		}
	}
	if bestOpener == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotArchive, path)
	}

	return bestOpener, nil
}

// Open implements [Backend]. It only validates that path can be opened by
// the reader for its format; no member header is read here, and no state
// is retained beyond the filename, per spec.md §4.C.
func (b *StreamBackend) Open(path string) (Handle, error) {
	opener, err := b.openerFor(path)
	if err != nil {
		return nil, err
	}

	cur, err := opener(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotArchive, path, err)
	}
	defer cur.Close()

	return &streamHandle{path: path, opener: opener}, nil
}

type streamHandle struct {
	path   string
	opener cursorOpener
}

func (h *streamHandle) Close() error { return nil }

func normalizeMemberName(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	isDir := strings.HasSuffix(name, "/")
	name = strings.TrimRight(name, "/")

	return name, isDir
}

// Enumerate implements [Handle]; a leading "./" is stripped from member
// names, per spec.md §4.C.
func (h *streamHandle) Enumerate(fn EnumFunc) error {
	cur, err := h.opener(h.path)
	if err != nil {
		return fmt.Errorf("stream: reopen %s: %w", h.path, err)
	}
	defer cur.Close()

	var idx int64
	for {
		name, size, dir, err := cur.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		normName, trailingSlash := normalizeMemberName(name)
		if normName == "" {
			idx++

			continue
		}

		e := Entry{Index: idx, Size: size}
		if dir || trailingSlash {
			e.Flags |= FlagDir
		}

		if err := fn(normName, e); err != nil {
			return err
		}

		idx++
	}
}

// EntryOpen implements [Handle] with the linear scan spec.md §4.C
// describes: names compared after "./"-strip and trailing-"/"-strip.
func (h *streamHandle) EntryOpen(name string) (Entry, error) {
	wantName, _ := normalizeMemberName(name)

	cur, err := h.opener(h.path)
	if err != nil {
		return Entry{}, fmt.Errorf("stream: reopen %s: %w", h.path, err)
	}
	defer cur.Close()

	var idx int64
	for {
		entryName, size, dir, err := cur.Next()
		if errors.Is(err, io.EOF) {
			return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
		}
		if err != nil {
			return Entry{}, err
		}

		normName, trailingSlash := normalizeMemberName(entryName)
		if normName == wantName {
			e := Entry{Index: idx, Size: size}
			if dir || trailingSlash {
				e.Flags |= FlagDir
			}

			return e, nil
		}

		idx++
	}
}

// FileOpen opens the archive fresh and fast-forwards to entry.Index by
// repeatedly calling Next and discarding data, per spec.md §4.C.
func (h *streamHandle) FileOpen(entry Entry) (File, error) {
	cur, idx, err := h.seekTo(entry.Index)
	if err != nil {
		return nil, err
	}

	return &streamFile{handle: h, cur: cur, curIndex: idx, entry: entry}, nil
}

// seekTo opens a fresh cursor and advances it until the member at ordinal
// index is the current one, discarding intervening members' data.
func (h *streamHandle) seekTo(index int64) (streamCursor, int64, error) {
	cur, err := h.opener(h.path)
	if err != nil {
		return nil, 0, fmt.Errorf("stream: reopen %s: %w", h.path, err)
	}

	var i int64
	for i < index {
		if _, _, _, err := cur.Next(); err != nil {
			cur.Close()

			return nil, 0, fmt.Errorf("stream: fast-forward to %d: %w", index, err)
		}

		if _, err := io.Copy(io.Discard, cur); err != nil {
			cur.Close()

			return nil, 0, fmt.Errorf("stream: discarding member %d: %w", i, err)
		}

		i++
	}

	if _, _, _, err := cur.Next(); err != nil {
		cur.Close()

		return nil, 0, fmt.Errorf("stream: positioning at %d: %w", index, err)
	}

	return cur, index, nil
}

// streamFile implements [File] for the streaming backend: there is no
// cheap seek, so any offset mismatch either rewinds (fresh open plus
// fast-forward) or reads-and-discards forward, in chunks of
// min(size, remaining), per spec.md §4.C. Each file handle owns its own
// cursor and mutex, since each has its own archive reader (spec.md §5).
type streamFile struct {
	handle   *streamHandle
	mu       sync.Mutex
	cur      streamCursor
	curIndex int64
	entry    Entry
	offset   int64
	errored  bool
}

func (f *streamFile) ReadAt(p []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.errored {
		return 0, errSticky
	}

	if offset != f.offset {
		if f.offset > offset {
			f.cur.Close()

			cur, idx, err := f.handle.seekTo(f.entry.Index)
			if err != nil {
				f.errored = true

				return 0, err
			}

			f.cur, f.curIndex, f.offset = cur, idx, 0
		}

		for f.offset < offset {
			want := offset - f.offset
			if want > int64(len(p)) {
				want = int64(len(p))
			}
			if want == 0 {
				want = 1
			}

			n, err := f.cur.Read(p[:want])
			if n <= 0 {
				f.errored = true

				return 0, fmt.Errorf("stream: forwarding to offset %d: %w", offset, errReadShort(err))
			}

			f.offset += int64(n)
		}
	}

	n, err := f.cur.Read(p)
	if n > 0 {
		f.offset += int64(n)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		f.errored = true
	}

	return n, err
}

func (f *streamFile) Close() error {
	return f.cur.Close()
}

// sortedEntries is a small helper used by the format backends (iso, cab)
// that parse their whole member table eagerly instead of truly streaming
// it; it lets them present that table through the same Next-based
// [streamCursor] interface the tar and rar readers implement directly.
type sortedEntries struct {
	entries []precomputedEntry
	pos     int
	reader  io.Reader
	onClose func() error
}

type precomputedEntry struct {
	name string
	size int64
	dir  bool
	open func() (io.Reader, error)
}

// newSortedCursor wraps a pre-discovered entry table (in discovery order)
// as a [streamCursor].
func newSortedCursor(entries []precomputedEntry) *sortedEntries {
	return &sortedEntries{entries: entries, pos: -1}
}

func (s *sortedEntries) Next() (string, int64, bool, error) {
	s.pos++
	if s.pos >= len(s.entries) {
		return "", 0, false, io.EOF
	}

	e := s.entries[s.pos]
	if e.dir {
		s.reader = nil

		return e.name, e.size, true, nil
	}

	r, err := e.open()
	if err != nil {
		return "", 0, false, err
	}
	s.reader = r

	return e.name, e.size, false, nil
}

func (s *sortedEntries) Read(p []byte) (int, error) {
	if s.reader == nil {
		return 0, io.EOF
	}

	return s.reader.Read(p)
}

func (s *sortedEntries) Close() error {
	if s.onClose != nil {
		return s.onClose()
	}

	return nil
}
