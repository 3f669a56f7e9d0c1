package pathvfs

import (
	"os"
	"strings"
	"syscall"
)

// composeIno implements peepfs_compose_ino: a synthetic inode combining a
// real, on-disk inode (the backing directory entry or archive file) with
// a relative ordinal meaningful only inside that archive (1 for the
// archive's own root view, or an entry's index+2 for a member).
func composeIno(base uint64, rel uint32) uint64 {
	return uint64(rel) | (base << 32)
}

func realIno(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Ino
	}

	return 0
}

// dirKey names the cache placeholder entry for the directory listing of
// archivePath/memberRel. Concatenating it with a child's base name via
// [Cache.Insert]/[Cache.Get] yields exactly the same full path a direct
// getattr lookup on that child would use, so entries populated by a
// directory listing are visible to later getattr calls and vice versa.
func dirKey(archivePath, memberRel string) string {
	if memberRel == "" {
		return archivePath
	}

	return archivePath + "/" + memberRel
}

// directChildOf reports whether name (an archive member's full path
// relative to the archive root) is a direct child of dirRel, and if so
// returns its base name within dirRel.
func directChildOf(dirRel, name string) (child string, ok bool) {
	if dirRel == "" {
		if name == "" || strings.Contains(name, "/") {
			return "", false
		}

		return name, true
	}

	prefix := dirRel + "/"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}

	rest := name[len(prefix):]
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}

	return rest, true
}
