package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// The raw embedding matrix is stored as a NumPy .npy file (format 1.0,
// little-endian float32, C order) so it can be inspected with standard
// tooling.

var npyMagic = []byte("\x93NUMPY")

var (
	npyShapeRe = regexp.MustCompile(`'shape':\s*\(\s*(\d+)\s*,\s*(\d+)\s*,?\s*\)`)
	npyDescrRe = regexp.MustCompile(`'descr':\s*'([^']*)'`)
)

func encodeNPY(rows [][]float32, dim int) []byte {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(rows), dim)
	// magic(6) + version(2) + header length(2) + header + '\n', padded to 64
	total := len(npyMagic) + 4 + len(header) + 1
	if pad := (64 - total%64) % 64; pad > 0 {
		header += string(bytes.Repeat([]byte{' '}, pad))
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Grow(len(npyMagic) + 4 + len(header) + len(rows)*dim*4)
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)

	b := make([]byte, 4)
	for _, row := range rows {
		for _, v := range row {
			binary.LittleEndian.PutUint32(b, math.Float32bits(v))
			buf.Write(b)
		}
	}
	return buf.Bytes()
}

func decodeNPY(data []byte) ([][]float32, int, error) {
	if len(data) < len(npyMagic)+4 || !bytes.Equal(data[:len(npyMagic)], npyMagic) {
		return nil, 0, errors.New("npy: bad magic")
	}
	major := data[len(npyMagic)]
	off := len(npyMagic) + 2

	var headerLen int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
	case 2, 3:
		if len(data) < off+4 {
			return nil, 0, errors.New("npy: truncated header")
		}
		headerLen = int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	default:
		return nil, 0, fmt.Errorf("npy: unsupported version %d", major)
	}
	if len(data) < off+headerLen {
		return nil, 0, errors.New("npy: truncated header")
	}
	header := string(data[off : off+headerLen])
	off += headerLen

	if m := npyDescrRe.FindStringSubmatch(header); m == nil || m[1] != "<f4" {
		return nil, 0, fmt.Errorf("npy: unsupported dtype in header %q", header)
	}
	if !strings.Contains(header, "'fortran_order': False") {
		return nil, 0, errors.New("npy: fortran order is not supported")
	}
	m := npyShapeRe.FindStringSubmatch(header)
	if m == nil {
		return nil, 0, fmt.Errorf("npy: expected a 2-d shape in header %q", header)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, 0, fmt.Errorf("npy: row count: %w", err)
	}
	dim, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, 0, fmt.Errorf("npy: dimension: %w", err)
	}

	body := data[off:]
	if len(body) != n*dim*4 {
		return nil, 0, fmt.Errorf("npy: %d data bytes, want %d for shape (%d, %d)", len(body), n*dim*4, n, dim)
	}

	rows := make([][]float32, n)
	for i := range rows {
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[(i*dim+j)*4:]))
		}
		rows[i] = row
	}
	return rows, dim, nil
}
