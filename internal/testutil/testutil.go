// Package testutil provides shared test utilities and fixtures.
//
// It centralises the synthetic image generation used by the feature,
// tracking and reconstruction tests, so every package exercises the same
// deterministic fixtures.
package testutil

import (
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NoiseImage returns a deterministic high-texture grayscale image. Every
// pixel is independent uniform noise, which gives the corner detector far
// more candidates than any realistic budget.
func NoiseImage(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

// UniformImage returns a constant-intensity grayscale image, i.e. a frame
// with zero extractable features.
func UniformImage(w, h int, value uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	return img
}

// ShiftImage returns a copy of src translated by (dx, dy) pixels. Source
// coordinates outside the image clamp to the border, mimicking a camera
// pan where new content resembles the frame edge.
func ShiftImage(src *image.Gray, dx, dy int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := x - dx
			sy := y - dy
			if sx < 0 {
				sx = 0
			} else if sx >= w {
				sx = w - 1
			}
			if sy < 0 {
				sy = 0
			} else if sy >= h {
				sy = h - 1
			}
			out.Pix[y*out.Stride+x] = src.Pix[sy*src.Stride+sx]
		}
	}
	return out
}

// WritePNG writes img to path, creating parent directories as needed.
func WritePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
