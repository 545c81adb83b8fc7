// Package loader provides guest image loading for the emulator: raw
// kernel and initrd blobs, optionally zstd-compressed.
package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the zstd frame magic number, little-endian on disk.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ReadImage loads a guest image from disk, transparently decompressing
// zstd frames detected by file magic.
func ReadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return Decompress(data)
}

// Decompress returns the image bytes, decoding a zstd frame when the
// blob starts with the zstd magic and passing everything else through.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}

	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd image: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress image: %w", err)
	}
	return out, nil
}
