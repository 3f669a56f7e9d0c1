package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ISO9660 reading is hand-rolled: no example repository in the retrieval
// pack imports a Go ISO9660 library (checked against every go.mod and
// manifest under the example tree). The format's directory table is
// small and simple enough that a minimal reader — primary volume
// descriptor plus plain (non-Joliet, non-Rock-Ridge) directory records —
// covers the common case read-only access this filesystem needs. Because
// ISO9660's directory records are randomly accessible by construction
// (unlike tar or rar), this reader parses the whole member table once at
// open time and serves it back through the same Next/Read [streamCursor]
// shape the other streaming formats use, rather than truly streaming.

const isoSectorSize = 2048

var errBadISO = errors.New("iso9660: not a valid ISO9660 image")

func openISOCursor(path string) (streamCursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	entries, err := readISOEntries(f)
	if err != nil {
		f.Close()

		return nil, err
	}

	cur := newSortedCursor(entries)
	cur.onClose = f.Close

	return cur, nil
}

func readSector(f *os.File, lba uint32, n int) ([]byte, error) {
	buf := make([]byte, isoSectorSize*n)
	if _, err := f.ReadAt(buf, int64(lba)*isoSectorSize); err != nil {
		return nil, err
	}

	return buf, nil
}

func readISOEntries(f *os.File) ([]precomputedEntry, error) {
	var rootLBA, rootLen uint32

	for sector := uint32(16); ; sector++ {
		buf, err := readSector(f, sector, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errBadISO, err)
		}

		if string(buf[1:6]) != "CD001" {
			return nil, errBadISO
		}

		switch buf[0] {
		case 1: // primary volume descriptor
			rootLBA = binary.LittleEndian.Uint32(buf[156+2 : 156+6])
			rootLen = binary.LittleEndian.Uint32(buf[156+10 : 156+14])
		case 255: // volume descriptor set terminator
			if rootLen == 0 {
				return nil, errBadISO
			}

			var entries []precomputedEntry

			if err := walkISODir(f, rootLBA, rootLen, "", &entries); err != nil {
				return nil, err
			}

			return entries, nil
		}
	}
}

func walkISODir(f *os.File, lba, length uint32, prefix string, out *[]precomputedEntry) error {
	sectors := int((length + isoSectorSize - 1) / isoSectorSize)

	buf, err := readSector(f, lba, sectors)
	if err != nil {
		return err
	}
	buf = buf[:length]

	pos := 0
	for pos < len(buf) {
		recLen := int(buf[pos])
		if recLen == 0 {
			// records do not cross sector boundaries; skip to the next one
			pos += isoSectorSize - (pos % isoSectorSize)

			continue
		}

		rec := buf[pos : pos+recLen]
		pos += recLen

		idLen := int(rec[32])
		if idLen == 0 || (idLen == 1 && (rec[33] == 0 || rec[33] == 1)) {
			continue // "." and ".." entries
		}

		name := string(rec[33 : 33+idLen])
		name = strings.TrimSuffix(name, ";1")
		name = strings.TrimSuffix(name, ".")

		extentLBA := binary.LittleEndian.Uint32(rec[2:6])
		dataLen := binary.LittleEndian.Uint32(rec[10:14])
		isDir := rec[25]&0x02 != 0

		full := name
		if prefix != "" {
			full = prefix + "/" + name
		}

		if isDir {
			*out = append(*out, precomputedEntry{name: full, dir: true})

			if err := walkISODir(f, extentLBA, dataLen, full, out); err != nil {
				return err
			}

			continue
		}

		elba, elen := extentLBA, dataLen
		*out = append(*out, precomputedEntry{
			name: full,
			size: int64(elen),
			open: func() (io.Reader, error) {
				return io.NewSectionReader(f, int64(elba)*isoSectorSize, int64(elen)), nil
			},
		})
	}

	return nil
}
