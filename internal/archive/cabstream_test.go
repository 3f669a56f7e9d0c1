package archive

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeCABFixture hand-assembles a single-folder, single-file, uncompressed
// MS-CAB cabinet: just enough of CFHEADER/CFFOLDER/CFFILE/CFDATA for
// readCABEntries to resolve one stored member.
func writeCABFixture(t *testing.T, path string, content []byte) {
	t.Helper()

	const (
		folderOffset = 36
		coffFiles    = 44
	)

	name := "a.txt"
	fileRecLen := 16 + len(name) + 1
	dataOffset := coffFiles + fileRecLen

	buf := make([]byte, dataOffset+8+len(content))

	copy(buf[0:4], "MSCF")
	binary.LittleEndian.PutUint32(buf[16:20], uint32(coffFiles))
	binary.LittleEndian.PutUint16(buf[26:28], 1) // cFolders
	binary.LittleEndian.PutUint16(buf[28:30], 1) // cFiles

	folder := buf[folderOffset : folderOffset+8]
	binary.LittleEndian.PutUint32(folder[0:4], uint32(dataOffset))
	binary.LittleEndian.PutUint16(folder[6:8], cabCompressNone)

	file := buf[coffFiles : coffFiles+fileRecLen]
	binary.LittleEndian.PutUint32(file[0:4], uint32(len(content)))
	binary.LittleEndian.PutUint32(file[4:8], 0)
	binary.LittleEndian.PutUint16(file[8:10], 0)
	copy(file[16:], name)
	file[16+len(name)] = 0

	data := buf[dataOffset:]
	binary.LittleEndian.PutUint16(data[4:6], uint16(len(content))) //nolint:gosec
	binary.LittleEndian.PutUint16(data[6:8], uint16(len(content))) //nolint:gosec
	copy(data[8:], content)

	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func Test_StreamBackend_Open_CAB_ListsEntryAndReadsContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.cab")
	content := []byte("cab file content example")
	writeCABFixture(t, path, content)

	b := NewStreamBackend()

	h, err := b.Open(path)
	require.NoError(t, err)
	defer h.Close()

	var names []string
	require.NoError(t, h.Enumerate(func(name string, _ Entry) error {
		names = append(names, name)

		return nil
	}))
	require.Equal(t, []string{"a.txt"}, names)

	e, err := h.EntryOpen("a.txt")
	require.NoError(t, err)
	require.EqualValues(t, len(content), e.Size)

	file, err := h.FileOpen(e)
	require.NoError(t, err)
	defer file.Close()

	out := make([]byte, len(content))
	n, err := file.ReadAt(out, 0)
	require.NoError(t, err)
	require.Equal(t, content, out[:n])
}

func Test_StreamBackend_Open_CAB_BadMagic_ReturnsErrNotArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.cab")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	b := NewStreamBackend()

	_, err := b.Open(path)
	require.ErrorIs(t, err, ErrNotArchive)
}
