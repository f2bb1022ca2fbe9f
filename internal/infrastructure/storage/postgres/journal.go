package postgres

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionAlgo names how a journaled document is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the document size above which documents are compressed.
const DefaultCompressThreshold = 512

// DocumentCodec compresses mapped documents for the emission journal.
// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
type DocumentCodec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

// NewDocumentCodec creates a codec; documents of threshold bytes or less stay raw.
func NewDocumentCodec(threshold int) (*DocumentCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	if threshold < 0 {
		threshold = 0
	}
	return &DocumentCodec{encoder: encoder, decoder: decoder, threshold: threshold}, nil
}

// Encode returns the bytes to store and the algorithm used.
func (c *DocumentCodec) Encode(doc []byte) ([]byte, CompressionAlgo) {
	if len(doc) == 0 {
		return nil, CompressionNone
	}
	if len(doc) <= c.threshold {
		return doc, CompressionNone
	}
	return c.encoder.EncodeAll(doc, nil), CompressionZstd
}

// Decode reverses Encode.
func (c *DocumentCodec) Decode(stored []byte, algo CompressionAlgo) ([]byte, error) {
	switch algo {
	case CompressionZstd:
		if len(stored) == 0 {
			return nil, nil
		}
		out, err := c.decoder.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress document: %w", err)
		}
		return out, nil
	case CompressionNone, "":
		return stored, nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algo)
	}
}

// Close releases the encoder and decoder.
func (c *DocumentCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
