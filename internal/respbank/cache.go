package respbank

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/qoldau/qoldau/internal/types"
)

// Disk cache layout: index.bin holds the vector matrix as little-endian
// float32 rows, meta.json describes it and pins the source file hash the
// matrix was built from. A cache whose hash no longer matches the source
// is a miss, never an error.

const (
	cacheVectorsFile = "index.bin"
	cacheMetaFile    = "meta.json"
)

var errCacheMiss = errors.New("response index cache miss")

type cacheMeta struct {
	SourceHash string                   `json:"source_hash"`
	Dims       int                      `json:"dims"`
	Items      []types.ResponseTemplate `json:"items"`
}

// hashFile returns the hex SHA-256 of the file contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// loadCache returns the cached index iff its recorded source hash and dims
// match. Any other condition is errCacheMiss or a corruption error.
func loadCache(dir, srcHash string, dims int) (*index, error) {
	rawMeta, err := os.ReadFile(filepath.Join(dir, cacheMetaFile))
	if err != nil {
		return nil, errCacheMiss
	}
	var meta cacheMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, fmt.Errorf("parse cache meta: %w", err)
	}
	if meta.SourceHash != srcHash || meta.Dims != dims || len(meta.Items) == 0 {
		return nil, errCacheMiss
	}

	raw, err := os.ReadFile(filepath.Join(dir, cacheVectorsFile))
	if err != nil {
		return nil, errCacheMiss
	}
	want := len(meta.Items) * dims * 4
	if len(raw) != want {
		return nil, fmt.Errorf("cache vectors are %d bytes, want %d", len(raw), want)
	}

	vectors := make([][]float32, len(meta.Items))
	off := 0
	for i := range vectors {
		row := make([]float32, dims)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
		}
		vectors[i] = row
	}
	return &index{items: meta.Items, vectors: vectors}, nil
}

// writeCache persists idx atomically: both files are written to temp names
// and renamed into place, meta last so a crash leaves a miss, not a lie.
func writeCache(dir, srcHash string, idx *index) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	dims := 0
	if len(idx.vectors) > 0 {
		dims = len(idx.vectors[0])
	}
	buf := make([]byte, 0, len(idx.vectors)*dims*4)
	scratch := make([]byte, 4)
	for _, row := range idx.vectors {
		for _, v := range row {
			binary.LittleEndian.PutUint32(scratch, math.Float32bits(v))
			buf = append(buf, scratch...)
		}
	}
	if err := atomicWrite(filepath.Join(dir, cacheVectorsFile), buf); err != nil {
		return err
	}

	rawMeta, err := json.Marshal(cacheMeta{SourceHash: srcHash, Dims: dims, Items: idx.items})
	if err != nil {
		return fmt.Errorf("marshal cache meta: %w", err)
	}
	return atomicWrite(filepath.Join(dir, cacheMetaFile), rawMeta)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
