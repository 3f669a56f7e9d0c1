package pathvfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_split_NonArchivePath_ReturnsWholePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	realFile := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(realFile, []byte("hi"), 0o644))

	archivePath, relPath, isArchive := split(realFile, ".peep")
	require.False(t, isArchive)
	require.Equal(t, realFile, archivePath)
	require.Empty(t, relPath)
}

func Test_split_MagicSuffixAfterRegularFile_SplitsAtArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archiveFile := filepath.Join(dir, "photos.zip")
	require.NoError(t, os.WriteFile(archiveFile, []byte("not a real zip, just a regular file"), 0o644))

	fullpath := archiveFile + ".peep/sub/file.txt"

	archivePath, relPath, isArchive := split(fullpath, ".peep")
	require.True(t, isArchive)
	require.Equal(t, archiveFile, archivePath)
	require.Equal(t, "sub/file.txt", relPath)
}

func Test_split_MagicSuffixAtArchiveRoot_EmptyRelPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archiveFile := filepath.Join(dir, "photos.zip")
	require.NoError(t, os.WriteFile(archiveFile, []byte("x"), 0o644))

	archivePath, relPath, isArchive := split(archiveFile+".peep", ".peep")
	require.True(t, isArchive)
	require.Equal(t, archiveFile, archivePath)
	require.Empty(t, relPath)
}

func Test_split_MagicSuffixOnADirectory_FallsThrough(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "notazip.peep")
	require.NoError(t, os.Mkdir(sub, 0o755))

	fullpath := filepath.Join(sub, "file.txt")

	_, _, isArchive := split(fullpath, ".peep")
	require.False(t, isArchive)
}

// Test_split_OverlappingMatches_RetriesPastFirstCandidate replicates the
// original implementation's overlapping re-scan: a magic suffix that
// appears twice, with only the second occurrence's prefix naming a real
// file, is still found.
func Test_split_OverlappingMatches_RetriesPastFirstCandidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// "a.peep.peep" as a literal file name: the first ".peep" candidate
	// prefix ("a") does not exist, but the second ("a.peep") does.
	archiveFile := filepath.Join(dir, "a.peep")
	require.NoError(t, os.WriteFile(archiveFile, []byte("x"), 0o644))

	fullpath := archiveFile + ".peep/member.txt"

	archivePath, relPath, isArchive := split(fullpath, ".peep")
	require.True(t, isArchive)
	require.Equal(t, archiveFile, archivePath)
	require.Equal(t, "member.txt", relPath)
}
