package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/perbu/trustmed/pkg/trustmed"
)

// Artifact file names inside an index directory.
const (
	IndexFile    = "index.gob"
	VectorsFile  = "vectors.npy"
	MetadataFile = "metadata.json"
)

const (
	formatVersion = 1
	metricL2      = "l2"
)

// indexFile is the gob-encoded form of the flat index. The checksums tie
// it to the vectors and metadata written in the same build.
type indexFile struct {
	Version        int
	Metric         string
	ModelInfo      string
	Dimension      int
	Vectors        [][]float32
	VectorsSHA256  string
	MetadataSHA256 string
}

// Save writes the artifacts to dir, replacing any previous build. All three
// files are written to temporary names first; nothing is replaced unless
// every write succeeded. The index is renamed last, and its checksums make a
// partially replaced directory fail to load.
func (a *Artifacts) Save(dir string) (err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	vectors := encodeNPY(a.Index.Vectors(), a.Index.Dimension())

	metadata, err := json.MarshalIndent(a.Chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	var idx bytes.Buffer
	if err := gob.NewEncoder(&idx).Encode(indexFile{
		Version:        formatVersion,
		Metric:         metricL2,
		ModelInfo:      a.ModelInfo,
		Dimension:      a.Index.Dimension(),
		Vectors:        a.Index.Vectors(),
		VectorsSHA256:  checksum(vectors),
		MetadataSHA256: checksum(metadata),
	}); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{VectorsFile, vectors},
		{MetadataFile, metadata},
		{IndexFile, idx.Bytes()},
	}

	temps := make([]string, 0, len(files))
	defer func() {
		if err != nil {
			for _, tmp := range temps {
				_ = os.Remove(tmp)
			}
		}
	}()

	for _, f := range files {
		tmp, err := createTemp(dir, f.name, f.data)
		if err != nil {
			return err
		}
		temps = append(temps, tmp)
	}

	for i, f := range files {
		if err := os.Rename(temps[i], filepath.Join(dir, f.name)); err != nil {
			return fmt.Errorf("replace %s: %w", f.name, err)
		}
	}
	temps = nil
	return nil
}

// createTemp writes one artifact to a temporary file; replaced in tests.
var createTemp = writeTemp

func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", name, err)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return f.Name(), nil
}

// Load reads the artifacts in dir and verifies that they belong together:
// same row count, same dimension and matching checksums. Failures wrap
// trustmed.ErrLoad.
func Load(dir string) (*Artifacts, error) {
	idxData, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read index: %w", trustmed.ErrLoad, err)
	}
	var idx indexFile
	if err := gob.NewDecoder(bytes.NewReader(idxData)).Decode(&idx); err != nil {
		return nil, fmt.Errorf("%w: decode index: %w", trustmed.ErrLoad, err)
	}
	if idx.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported index version %d", trustmed.ErrLoad, idx.Version)
	}
	if idx.Metric != metricL2 {
		return nil, fmt.Errorf("%w: unsupported index metric %q", trustmed.ErrLoad, idx.Metric)
	}

	vecData, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read vectors: %w", trustmed.ErrLoad, err)
	}
	matrix, dim, err := decodeNPY(vecData)
	if err != nil {
		return nil, fmt.Errorf("%w: decode vectors: %w", trustmed.ErrLoad, err)
	}

	metaData, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata: %w", trustmed.ErrLoad, err)
	}
	var chunks []trustmed.Chunk
	if err := json.Unmarshal(metaData, &chunks); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %w", trustmed.ErrLoad, err)
	}

	rows := len(idx.Vectors)
	switch {
	case len(chunks) != rows:
		return nil, fmt.Errorf("%w: metadata has %d entries, index has %d rows", trustmed.ErrLoad, len(chunks), rows)
	case len(matrix) != rows:
		return nil, fmt.Errorf("%w: vector matrix has %d rows, index has %d rows", trustmed.ErrLoad, len(matrix), rows)
	case rows > 0 && dim != idx.Dimension:
		return nil, fmt.Errorf("%w: vector matrix dimension %d, index dimension %d", trustmed.ErrLoad, dim, idx.Dimension)
	}

	if idx.VectorsSHA256 != "" && idx.VectorsSHA256 != checksum(vecData) {
		return nil, fmt.Errorf("%w: %s does not belong to this index", trustmed.ErrLoad, VectorsFile)
	}
	if idx.MetadataSHA256 != "" && idx.MetadataSHA256 != checksum(metaData) {
		return nil, fmt.Errorf("%w: %s does not belong to this index", trustmed.ErrLoad, MetadataFile)
	}

	ix, err := trustmed.NewFlatIndex(idx.Vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", trustmed.ErrLoad, err)
	}
	if ix.Dimension() != idx.Dimension {
		return nil, fmt.Errorf("%w: index rows have dimension %d, header says %d", trustmed.ErrLoad, ix.Dimension(), idx.Dimension)
	}

	return &Artifacts{
		Index:     ix,
		Chunks:    chunks,
		ModelInfo: idx.ModelInfo,
	}, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
