// Package vision turns client payloads into model-ready tensors.
package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned for any payload that cannot be turned into a bitmap.
var ErrInvalidImage = errors.New("invalid image data")

// DecodeBase64 decodes a base64 image, optionally prefixed with a data URL
// header. Everything up to and including the first comma is discarded.
func DecodeBase64(payload string) (image.Image, error) {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	raw, err := decodeBase64Payload(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return DecodeBytes(raw)
}

// DecodeBytes parses encoded image bytes (JPEG, PNG, GIF, BMP, TIFF, WebP).
func DecodeBytes(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// EncodePNGBase64 encodes img as PNG and returns the standard base64 text.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeBase64Payload accepts padded and unpadded standard base64.
func decodeBase64Payload(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty payload")
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return raw, nil
	}
	if len(s)%4 == 0 {
		return nil, err
	}
	return base64.RawStdEncoding.DecodeString(s)
}
