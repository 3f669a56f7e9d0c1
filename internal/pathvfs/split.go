package pathvfs

import (
	"os"
	"strings"

	"github.com/benjarvis/peepfs/internal/archive"
)

// split implements spec.md §4.E/§9's magic-suffix substring scan: it looks
// for every occurrence of magicSuffix within fullpath (including
// overlapping ones), and for the first occurrence whose prefix names a
// real, regular file, returns that prefix as the archive path and
// whatever follows (with a leading slash trimmed) as the member's
// relative path. If magicSuffix never resolves to a regular file, the
// whole of fullpath is returned as a non-archive path.
//
// This mirrors peepfs_static_archive_path: it is a string operation first
// and a filesystem probe second — a path is only "inside an archive" once
// lstat confirms the candidate prefix is a plain file.
func split(fullpath, magicSuffix string) (archivePath, relPath string, isArchive bool) {
	token := fullpath

	for {
		idx := strings.Index(token, magicSuffix)
		if idx < 0 {
			return fullpath, "", false
		}

		// Absolute offset of the match within fullpath.
		offset := len(fullpath) - len(token) + idx

		candidate := fullpath[:offset]

		info, err := os.Lstat(candidate)
		if err == nil && info.Mode().IsRegular() {
			rest := fullpath[offset+len(magicSuffix):]
			rest = strings.TrimLeft(rest, "/")

			return candidate, rest, true
		}

		// Retry, allowing the next scan to start one byte into the
		// current match (permits overlapping matches, exactly as the
		// original's token++ does).
		if idx+1 >= len(token) {
			return fullpath, "", false
		}

		token = token[idx+1:]
	}
}

// identifyArchive reports whether name (a directory entry in dir) names a
// file this filesystem recognises as an archive — by extension and by
// successfully opening it through the registry — and if so returns the
// pseudo-entry name presented alongside it: name with the magic suffix
// appended (e.g. "photos.zip.peep" for "photos.zip"), per spec.md §4.E's
// "augmented with a <name><SUFFIX> pseudo-entry" and peepfs_archive_ident.
func identifyArchive(reg *archive.Registry, dir, name, magicSuffix string) (pseudoName string, ok bool) {
	if !archive.Recognized(name) {
		return "", false
	}

	full := dir + "/" + name

	h, err := reg.Open(full)
	if err != nil {
		return "", false
	}
	h.Close()

	return name + magicSuffix, true
}
