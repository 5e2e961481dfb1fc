package compress

import (
	"bytes"
	"errors"
	"testing"
)

func TestBelowThresholdPassesThrough(t *testing.T) {
	c, err := New(Config{ThresholdBytes: 100, Level: 6})
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte("x"), 50)
	blob, err := c.Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	if blob.Compressed {
		t.Fatal("50 bytes under a 100-byte threshold must not be compressed")
	}
	if blob.Data != string(data) {
		t.Fatal("pass-through must carry data verbatim")
	}
	if blob.OriginalSize != 50 || blob.CompressedSize != 50 {
		t.Fatalf("pass-through sizes must both equal input length, got %d/%d", blob.OriginalSize, blob.CompressedSize)
	}

	out, err := Decompress(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("pass-through decompress must return data verbatim")
	}
}

func TestAboveThresholdRoundTrip(t *testing.T) {
	c, err := New(Config{ThresholdBytes: 100, Level: 6})
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte("agent to agent "), 34) // 510 bytes, compresses well
	blob, err := c.Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	if !blob.Compressed {
		t.Fatal("510 bytes over a 100-byte threshold must be compressed")
	}
	if blob.OriginalSize != len(data) {
		t.Fatalf("expected original size %d, got %d", len(data), blob.OriginalSize)
	}
	if blob.CompressedSize >= blob.OriginalSize {
		t.Fatalf("repetitive input should shrink, got %d >= %d", blob.CompressedSize, blob.OriginalSize)
	}

	out, err := Decompress(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("round trip mismatch")
	}
}

func TestCorruptDataFails(t *testing.T) {
	c, err := New(Config{ThresholdBytes: 10, Level: 9})
	if err != nil {
		t.Fatal(err)
	}

	blob, err := c.Compress(bytes.Repeat([]byte("y"), 200))
	if err != nil {
		t.Fatal(err)
	}

	blob.Data = "not base64!!!"
	if _, err := Decompress(blob); !errors.Is(err, ErrCompression) {
		t.Fatalf("expected ErrCompression, got %v", err)
	}

	blob.Data = "aGVsbG8=" // valid base64, not a zlib stream
	if _, err := Decompress(blob); !errors.Is(err, ErrCompression) {
		t.Fatalf("expected ErrCompression for garbage stream, got %v", err)
	}
}

func TestInvalidLevel(t *testing.T) {
	for _, level := range []int{0, -1, 10} {
		if _, err := New(Config{ThresholdBytes: 10, Level: level}); err == nil {
			t.Fatalf("level %d should be rejected", level)
		}
	}
}
