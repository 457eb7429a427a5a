// Package media converts uploaded photos into size-capped payloads suitable
// for transmission to the remote model.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/framefold/groupshot/internal/models"
)

// Options caps the prepared payload. Zero values fall back to defaults.
type Options struct {
	// MaxEdge is the longest allowed edge in pixels; larger images are
	// downscaled preserving aspect ratio.
	MaxEdge int

	// MaxBytes caps the encoded payload size; the JPEG quality is lowered
	// stepwise until the payload fits.
	MaxBytes int
}

const (
	defaultMaxEdge  = 1024
	defaultMaxBytes = 1400 * 1024

	startQuality = 88
	minQuality   = 40
	qualityStep  = 12

	// minEdge bounds the progressive downscaling used when the quality
	// floor alone cannot get the payload under the byte cap.
	minEdge = 64
)

// Prepare decodes raw upload bytes (JPEG, PNG, GIF or WebP), downscales the
// image to fit opts.MaxEdge, and re-encodes it as a JPEG no larger than
// opts.MaxBytes, downscaling further if lowering the quality alone is not
// enough. An image that cannot be reduced under the cap is rejected. It also
// reports the original pixel dimensions.
func Prepare(raw []byte, opts Options) (models.EncodedImage, int, int, error) {
	maxEdge := opts.MaxEdge
	if maxEdge <= 0 {
		maxEdge = defaultMaxEdge
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return models.EncodedImage{}, 0, 0, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if long := max(width, height); maxEdge > long {
		maxEdge = long
	}

	scaled := src
	if width > maxEdge || height > maxEdge {
		scaled = downscale(src, maxEdge)
	}

	// Lower the JPEG quality stepwise; if the floor still overflows the
	// cap, halve the edge bound and try again down to minEdge.
	for {
		data, fits, err := encodeUnder(scaled, maxBytes)
		if err != nil {
			return models.EncodedImage{}, 0, 0, err
		}
		if fits {
			return models.EncodedImage{
				Data:     data,
				MIMEType: "image/jpeg",
			}, width, height, nil
		}
		if maxEdge <= minEdge {
			return models.EncodedImage{}, 0, 0, fmt.Errorf("image cannot be reduced below %d bytes", maxBytes)
		}
		maxEdge /= 2
		if maxEdge < minEdge {
			maxEdge = minEdge
		}
		scaled = downscale(src, maxEdge)
	}
}

func encodeUnder(img image.Image, maxBytes int) ([]byte, bool, error) {
	for quality := startQuality; ; quality -= qualityStep {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, false, fmt.Errorf("encode image: %w", err)
		}
		if buf.Len() <= maxBytes {
			return buf.Bytes(), true, nil
		}
		if quality-qualityStep < minQuality {
			return nil, false, nil
		}
	}
}

func downscale(src image.Image, maxEdge int) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var dstW, dstH int
	if width >= height {
		dstW = maxEdge
		dstH = height * maxEdge / width
	} else {
		dstH = maxEdge
		dstW = width * maxEdge / height
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
