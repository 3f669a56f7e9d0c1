package archive

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/benjarvis/peepfs/internal/logging"
)

func Test_Recognized_KnownSuffixes_True(t *testing.T) {
	t.Parallel()

	for _, name := range []string{
		"a.zip", "a.tar", "a.tar.gz", "a.tar.bz2", "a.tar.xz",
		"a.tgz", "a.iso", "a.rar", "a.cab", "A.ZIP",
	} {
		require.True(t, Recognized(name), name)
	}
}

func Test_Recognized_UnknownSuffix_False(t *testing.T) {
	t.Parallel()

	require.False(t, Recognized("a.txt"))
	require.False(t, Recognized("noextension"))
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	log := logging.NewRingBuffer(20, io.Discard)
	zipBackend := NewZipBackend(4, time.Minute, log)
	t.Cleanup(zipBackend.Stop)

	return NewRegistry(zipBackend, NewStreamBackend())
}

func Test_Registry_Open_ZipSuffix_DispatchesToZipBackend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.zip")
	writeZipFixture(t, path, true)

	r := newTestRegistry(t)

	h, err := r.Open(path)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.EntryOpen("a.txt")
	require.NoError(t, err)
}

func Test_Registry_Open_TarSuffix_DispatchesToStreamBackend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.tar")
	writeTarFixture(t, path, false)

	r := newTestRegistry(t)

	h, err := r.Open(path)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.EntryOpen("sub/a.txt")
	require.NoError(t, err)
}

func Test_Registry_Open_UnrecognisedSuffix_ReturnsErrNotArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain"), 0o644))

	r := newTestRegistry(t)

	_, err := r.Open(path)
	require.ErrorIs(t, err, ErrNotArchive)
}

func Test_Registry_Open_ZipSuffixButNotAZip_ReturnsErrNotArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "fake.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	r := newTestRegistry(t)

	_, err := r.Open(path)
	require.ErrorIs(t, err, ErrNotArchive)
}
