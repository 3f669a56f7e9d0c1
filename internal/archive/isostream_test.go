package archive

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeISOFixture hand-assembles a minimal ISO9660 image: a primary volume
// descriptor pointing at a one-sector root directory (with "." and ".."
// records plus a single file record), a terminator descriptor, and the
// file's own data sector. This is the smallest image readISOEntries
// actually needs to walk.
func writeISOFixture(t *testing.T, path string, content []byte) {
	t.Helper()

	const (
		rootLBA = 18
		dataLBA = 19
	)

	root := buildISODirRecord(t, rootLBA, dataLBA, content)

	img := make([]byte, (dataLBA+1)*isoSectorSize)

	pvd := img[16*isoSectorSize : 17*isoSectorSize]
	pvd[0] = 1
	copy(pvd[1:6], "CD001")
	binary.LittleEndian.PutUint32(pvd[156+2:156+6], rootLBA)
	binary.LittleEndian.PutUint32(pvd[156+10:156+14], uint32(len(root))) //nolint:gosec

	term := img[17*isoSectorSize : 18*isoSectorSize]
	term[0] = 255
	copy(term[1:6], "CD001")

	copy(img[rootLBA*isoSectorSize:], root)
	copy(img[dataLBA*isoSectorSize:], content)

	require.NoError(t, os.WriteFile(path, img, 0o644))
}

func buildISODirRecord(t *testing.T, rootLBA, dataLBA uint32, content []byte) []byte {
	t.Helper()

	self := isoDirEntry(rootLBA, uint32(len(content))+40+34+34, []byte{0x00}, false) //nolint:gosec
	parent := isoDirEntry(rootLBA, uint32(len(content))+40+34+34, []byte{0x01}, false) //nolint:gosec
	file := isoDirEntry(dataLBA, uint32(len(content)), []byte("A.TXT;1"), false) //nolint:gosec

	return append(append(self, parent...), file...)
}

func isoDirEntry(extentLBA, dataLen uint32, id []byte, isDir bool) []byte {
	idLen := len(id)
	recLen := 33 + idLen
	if recLen%2 != 0 {
		recLen++
	}

	rec := make([]byte, recLen)
	rec[0] = byte(recLen)
	binary.LittleEndian.PutUint32(rec[2:6], extentLBA)
	binary.LittleEndian.PutUint32(rec[10:14], dataLen)
	if isDir {
		rec[25] = 0x02
	}
	rec[32] = byte(idLen)
	copy(rec[33:], id)

	return rec
}

func Test_StreamBackend_Open_ISO_ListsEntriesAndReadsContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.iso")
	content := []byte("hello from inside an iso image")
	writeISOFixture(t, path, content)

	b := NewStreamBackend()

	h, err := b.Open(path)
	require.NoError(t, err)
	defer h.Close()

	var names []string
	require.NoError(t, h.Enumerate(func(name string, _ Entry) error {
		names = append(names, name)

		return nil
	}))
	require.Equal(t, []string{"A.TXT"}, names)

	e, err := h.EntryOpen("A.TXT")
	require.NoError(t, err)
	require.EqualValues(t, len(content), e.Size)

	file, err := h.FileOpen(e)
	require.NoError(t, err)
	defer file.Close()

	buf := make([]byte, len(content))
	n, err := file.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, content, buf[:n])
}

func Test_StreamBackend_Open_ISO_BadMagic_ReturnsErrNotArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.iso")
	require.NoError(t, os.WriteFile(path, make([]byte, 20*isoSectorSize), 0o644))

	b := NewStreamBackend()

	_, err := b.Open(path)
	require.ErrorIs(t, err, ErrNotArchive)
}
