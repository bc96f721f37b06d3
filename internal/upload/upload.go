// Package upload validates and normalizes submitted photos before they
// are embedded into a generation request.
package upload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// Normalize decodes the submitted image and, when either side exceeds
// maxDim, downscales it to fit and re-encodes as JPEG. Images already
// within bounds pass through untouched so their original format survives.
func Normalize(data []byte, contentType string, maxDim int) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	if maxDim <= 0 {
		return data, contentType, nil
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxDim && bounds.Dy() <= maxDim {
		return data, contentType, nil
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// DataURI packs image bytes into an embeddable data URL.
func DataURI(data []byte, contentType string) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
