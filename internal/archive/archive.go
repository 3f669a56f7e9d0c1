// Package archive implements the backend abstraction component: a single
// interface over a seekable, random-access reader (ZIP) and a streaming,
// forward-only reader for the generic archive family, plus the registry
// that dispatches between them by file extension.
package archive

import (
	"errors"
	"strings"
)

// ErrNotArchive is returned (wrapped) when a path cannot be opened by any
// registered backend, or is not a recognised archive extension at all.
var ErrNotArchive = errors.New("archive: not a recognised archive")

// ErrEntryNotFound is returned by Handle.EntryOpen when no member matches
// the requested name.
var ErrEntryNotFound = errors.New("archive: entry not found")

// Flag is a bitset describing properties of an [Entry].
type Flag uint32

const (
	// FlagDir marks an entry that is itself a directory.
	FlagDir Flag = 1 << iota

	// FlagSeekable marks an entry the backend can randomly access without
	// re-decoding its content from the start (e.g. a stored, uncompressed
	// ZIP member).
	FlagSeekable
)

// Entry is the archive entry descriptor of spec.md §3: a backend-defined
// stable ordinal, a size and a flag set. The ordinal is valid only for the
// lifetime of the archive's on-disk content; it is used to re-open a
// member by position.
type Entry struct {
	Index int64
	Size  int64
	Flags Flag
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Flags&FlagDir != 0 }

// Seekable reports whether the entry supports true random access.
func (e Entry) Seekable() bool { return e.Flags&FlagSeekable != 0 }

// EnumFunc is called once per archive member during Handle.Enumerate. name
// is the member's path within the archive (the ZIP backend reports
// directory members with their trailing "/"; the streaming backend strips
// it and marks them with FlagDir only); returning a non-nil error aborts the enumeration and is propagated to the
// Enumerate caller.
type EnumFunc func(name string, entry Entry) error

// File is a per-open, per-member reader. A File is owned by exactly one
// open and must be closed exactly once.
type File interface {
	// ReadAt reads up to len(p) bytes starting at offset, exactly as
	// spec.md §4.B/§4.C describe: mismatched offsets are served by
	// seeking (if supported), or by rewinding and/or discard-reading
	// forward. A read error latches sticky: once an operation on this
	// File fails, every subsequent call also fails.
	ReadAt(p []byte, offset int64) (int, error)
	Close() error
}

// Handle is an open archive. It must be safe to Open and Close repeatedly
// for the same backing file.
type Handle interface {
	// Enumerate walks every member in the archive, in backend-native
	// order, invoking fn once per member.
	Enumerate(fn EnumFunc) error

	// EntryOpen resolves a member by name. name has no leading slash.
	// Directories may be looked up with or without a trailing slash.
	EntryOpen(name string) (Entry, error)

	// FileOpen opens a reader positioned at entry.
	FileOpen(entry Entry) (File, error)

	Close() error
}

// Backend opens archives of the kind it supports.
type Backend interface {
	// Open opens path, returning ErrNotArchive (wrapped) if path is not a
	// valid archive of this backend's kind.
	Open(path string) (Handle, error)
}

// recognizedSuffixes lists the double (and single) dot-suffixes the path
// virtualiser pre-filters directory listings to, per spec.md §4.A/§6.
// [Recognized] only tests whether any of them matches, so their order is
// not significant.
var recognizedSuffixes = []string{
	".tar.gz",
	".tar.bz2",
	".tar.xz",
	".zip",
	".tar",
	".tgz",
	".iso",
	".rar",
	".cab",
}

// Recognized reports whether name carries one of the recognised archive
// extensions (case-insensitive), per spec.md §6.
func Recognized(name string) bool {
	lower := strings.ToLower(name)
	for _, suf := range recognizedSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}

	return false
}

// Registry dispatches Open calls to the backend matching a path's final
// dot-suffix, per spec.md §4.A: "if it equals zip, try the random-access
// backend; otherwise try the streaming backend."
type Registry struct {
	zip    Backend
	stream Backend
}

// NewRegistry builds a [Registry] from the two required backends.
func NewRegistry(zipBackend, streamBackend Backend) *Registry {
	return &Registry{zip: zipBackend, stream: streamBackend}
}

// Open dispatches path to the appropriate backend by extension and opens
// it. It returns ErrNotArchive (wrapped) if path is not recognised or
// fails to open under its backend.
func (r *Registry) Open(path string) (Handle, error) {
	lower := strings.ToLower(path)

	if strings.HasSuffix(lower, ".zip") {
		return r.zip.Open(path)
	}

	if !Recognized(path) {
		return nil, ErrNotArchive
	}

	return r.stream.Open(path)
}
