// Package compress implements conditional envelope compression. Inputs below
// the configured threshold pass through unchanged so small messages never pay
// the deflate cost, while the stored blob shape stays uniform either way.
package compress

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

// ErrCompression covers both deflate and inflate failures. It is a distinct
// error kind, never conflated with decryption errors.
var ErrCompression = errors.New("compress: operation failed")

// Config holds compressor parameters.
type Config struct {
	ThresholdBytes int
	Level          int // 1 (fastest) to 9 (best)
}

// Compressor deflates byte blobs above a size threshold.
type Compressor struct {
	threshold int
	level     int
}

// New creates a compressor. Level must be between 1 and 9.
func New(cfg Config) (*Compressor, error) {
	if cfg.Level < zlib.BestSpeed || cfg.Level > zlib.BestCompression {
		return nil, fmt.Errorf("compress: level must be 1-9, got %d", cfg.Level)
	}
	return &Compressor{threshold: cfg.ThresholdBytes, level: cfg.Level}, nil
}

// Compress deflates data when it meets the threshold, otherwise returns a
// pass-through blob carrying the data verbatim.
func (c *Compressor) Compress(data []byte) (*models.CompressedBlob, error) {
	if len(data) < c.threshold {
		return PassThrough(data), nil
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}

	return &models.CompressedBlob{
		Compressed:     true,
		Data:           base64.StdEncoding.EncodeToString(buf.Bytes()),
		OriginalSize:   len(data),
		CompressedSize: buf.Len(),
	}, nil
}

// PassThrough wraps data in an uncompressed blob. The engine uses it to keep
// the stored envelope shape uniform when no compressor is configured.
func PassThrough(data []byte) *models.CompressedBlob {
	return &models.CompressedBlob{
		Compressed:     false,
		Data:           string(data),
		OriginalSize:   len(data),
		CompressedSize: len(data),
	}
}

// Decompress is the inverse of Compress. It needs no configuration, so it is
// a package function: blobs written by any compressor settings decode the
// same way.
func Decompress(blob *models.CompressedBlob) ([]byte, error) {
	if !blob.Compressed {
		return []byte(blob.Data), nil
	}

	raw, err := base64.StdEncoding.DecodeString(blob.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 data", ErrCompression)
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	return data, nil
}
