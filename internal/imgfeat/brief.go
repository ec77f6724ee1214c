package imgfeat

import (
	"image"
	"math"
	"math/rand"
)

// DescriptorSize is the descriptor length in bytes (256 comparisons).
const DescriptorSize = 32

// Descriptor is a 256-bit binary descriptor compared under Hamming
// distance.
type Descriptor [DescriptorSize]byte

// patternRadius bounds the sampling pattern so a rotated pair stays inside
// the patchMargin border of the image.
const patternRadius = 12

// briefPattern holds the 256 point pairs (x1,y1,x2,y2) the descriptor
// compares. Generated once from a fixed seed so descriptors are stable
// across runs and across the tracker/reconstructor split.
var briefPattern [256][4]int8

func init() {
	rng := rand.New(rand.NewSource(0x0b5f))
	gauss := func() int8 {
		for {
			v := rng.NormFloat64() * 5.0
			if v >= -patternRadius && v <= patternRadius {
				return int8(math.Round(v))
			}
		}
	}
	for i := range briefPattern {
		briefPattern[i] = [4]int8{gauss(), gauss(), gauss(), gauss()}
	}
}

// computeDescriptor samples the steered BRIEF pattern around (x,y) on a
// pre-blurred image. It reports false when any rotated sample would fall
// outside the image, which only happens for keypoints closer to the edge
// than patchMargin allows.
func computeDescriptor(blurred *image.Gray, x, y int, angle float64) (Descriptor, bool) {
	var d Descriptor
	w, h := blurred.Rect.Dx(), blurred.Rect.Dy()
	sin, cos := math.Sincos(angle)

	for i, p := range briefPattern {
		x1 := x + int(math.Round(cos*float64(p[0])-sin*float64(p[1])))
		y1 := y + int(math.Round(sin*float64(p[0])+cos*float64(p[1])))
		x2 := x + int(math.Round(cos*float64(p[2])-sin*float64(p[3])))
		y2 := y + int(math.Round(sin*float64(p[2])+cos*float64(p[3])))
		if x1 < 0 || x1 >= w || y1 < 0 || y1 >= h || x2 < 0 || x2 >= w || y2 < 0 || y2 >= h {
			return Descriptor{}, false
		}
		if blurred.Pix[y1*blurred.Stride+x1] < blurred.Pix[y2*blurred.Stride+x2] {
			d[i/8] |= 1 << uint(i%8)
		}
	}
	return d, true
}
