package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// hasCorrectPngSignature checks whether the provided data begins with a valid PNG signature
func hasCorrectPngSignature(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature)
}

// decodeRaster decodes any raster format with a registered decoder
func decodeRaster(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	bb := img.Bounds()
	// Rough heuristic: 1 byte per pixel
	buf.Grow(bb.Dx() * bb.Dy())
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG image: %w", err)
	}
	return buf.Bytes(), nil
}
