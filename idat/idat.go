// Package idat reads the header of Illumina IDAT intensity files. Only the
// fields needed to classify an array design are decoded; full intensity
// parsing belongs to the vendor-format reader, not this package.
package idat

import (
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/carbocation/pfx"
)

// ErrFormat reports a file that exists but is not a valid IDAT file, as
// opposed to a file that is missing or unreadable.
var ErrFormat = errors.New("idat: not a valid IDAT file")

const (
	idatMagic   = "IDAT"
	idatVersion = 3

	// Field code of the probe count (nSNPsRead) in the IDAT field directory.
	fieldProbeCount = 1000
)

// ProbeCount opens the IDAT file at path and returns the number of probes
// recorded in its header. Files ending in .gz are decompressed on the fly.
// Nothing beyond the header and the probe-count field is read.
func ProbeCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, pfx.Err(err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
		}
		defer gz.Close()
		r = gz
	}

	count, err := readProbeCount(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}

	return count, nil
}

// readProbeCount decodes the IDAT preamble and field directory from r, then
// skips forward to the probe-count field. The reader is consumed
// sequentially so the same code path works for plain and gzipped files,
// which cannot seek.
func readProbeCount(r io.Reader) (int, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, err
	}
	if string(magic[:]) != idatMagic {
		return 0, fmt.Errorf("bad magic %q", magic)
	}

	var version int64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	if version != idatVersion {
		return 0, fmt.Errorf("unsupported IDAT version %d", version)
	}

	var nFields int32
	if err := binary.Read(r, binary.LittleEndian, &nFields); err != nil {
		return 0, err
	}
	if nFields <= 0 {
		return 0, fmt.Errorf("invalid field count %d", nFields)
	}

	// Position after magic + version + field count.
	pos := int64(4 + 8 + 4)

	var countOffset int64 = -1
	for i := int32(0); i < nFields; i++ {
		var code uint16
		var offset int64
		if err := binary.Read(r, binary.LittleEndian, &code); err != nil {
			return 0, err
		}
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return 0, err
		}
		pos += 2 + 8

		if code == fieldProbeCount {
			countOffset = offset
		}
	}

	if countOffset < 0 {
		return 0, fmt.Errorf("probe-count field %d missing from field directory", fieldProbeCount)
	}
	if countOffset < pos {
		return 0, fmt.Errorf("probe-count field offset %d inside header", countOffset)
	}

	if _, err := io.CopyN(io.Discard, r, countOffset-pos); err != nil {
		return 0, err
	}

	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, fmt.Errorf("negative probe count %d", count)
	}

	return int(count), nil
}
