// Package imgfeat implements the image-side primitives of the pipeline:
// grayscale loading, blur scoring, frame differencing, FAST corner
// detection, oriented BRIEF binary descriptors and Hamming matching.
//
// Everything operates on stdlib *image.Gray with row-major Pix access, the
// same flat-buffer convention the rest of the numeric code uses.
package imgfeat

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
)

// LoadImage reads an image file (JPEG or PNG).
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// LoadGray reads an image file (JPEG or PNG) and returns it as grayscale.
func LoadGray(path string) (*image.Gray, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}

// ToGray converts any image to 8-bit grayscale using the BT.601 luma
// weights (the same weighting image/color.GrayModel applies).
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			// 16-bit channels; luma rounds to 8 bits.
			l := (299*r + 587*g + 114*bl + 500) / 1000
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = uint8(l >> 8)
		}
	}
	return out
}

// LaplacianVariance scores image sharpness as the variance of the
// 4-neighbor Laplacian response. Blurry frames score low; the keyframe
// selector compares this against its blur threshold.
func LaplacianVariance(g *image.Gray) float64 {
	w := g.Rect.Dx()
	h := g.Rect.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	n := 0
	sum := 0.0
	sumSq := 0.0
	for y := 1; y < h-1; y++ {
		row := y * g.Stride
		for x := 1; x < w-1; x++ {
			c := float64(g.Pix[row+x])
			lap := float64(g.Pix[row+x-1]) + float64(g.Pix[row+x+1]) +
				float64(g.Pix[row-g.Stride+x]) + float64(g.Pix[row+g.Stride+x]) - 4*c
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// MeanAbsDiff returns the mean absolute per-pixel difference between two
// grayscale images. Images of differing dimensions count as maximally
// different (255), which makes a resolution change always pass the motion
// gate.
func MeanAbsDiff(a, b *image.Gray) float64 {
	aw, ah := a.Rect.Dx(), a.Rect.Dy()
	bw, bh := b.Rect.Dx(), b.Rect.Dy()
	if aw != bw || ah != bh || aw == 0 || ah == 0 {
		return 255
	}

	total := 0.0
	for y := 0; y < ah; y++ {
		ra := y * a.Stride
		rb := y * b.Stride
		for x := 0; x < aw; x++ {
			d := int(a.Pix[ra+x]) - int(b.Pix[rb+x])
			if d < 0 {
				d = -d
			}
			total += float64(d)
		}
	}
	return total / float64(aw*ah)
}

// resizeBilinear scales a grayscale image to the given dimensions with
// bilinear interpolation. Used to build the detection pyramid.
func resizeBilinear(src *image.Gray, dstW, dstH int) *image.Gray {
	srcW, srcH := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, dstW, dstH))
	if dstW <= 0 || dstH <= 0 || srcW == 0 || srcH == 0 {
		return dst
	}
	sx := float64(srcW) / float64(dstW)
	sy := float64(srcH) / float64(dstH)
	for y := 0; y < dstH; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		wy := fy - float64(y0)
		y1 := y0 + 1
		if y0 < 0 {
			y0, y1, wy = 0, 0, 0
		}
		if y1 >= srcH {
			y1 = srcH - 1
			if y0 >= srcH {
				y0 = srcH - 1
			}
		}
		for x := 0; x < dstW; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			wx := fx - float64(x0)
			x1 := x0 + 1
			if x0 < 0 {
				x0, x1, wx = 0, 0, 0
			}
			if x1 >= srcW {
				x1 = srcW - 1
				if x0 >= srcW {
					x0 = srcW - 1
				}
			}
			p00 := float64(src.Pix[y0*src.Stride+x0])
			p01 := float64(src.Pix[y0*src.Stride+x1])
			p10 := float64(src.Pix[y1*src.Stride+x0])
			p11 := float64(src.Pix[y1*src.Stride+x1])
			top := p00 + (p01-p00)*wx
			bot := p10 + (p11-p10)*wx
			dst.Pix[y*dst.Stride+x] = uint8(math.Round(top + (bot-top)*wy))
		}
	}
	return dst
}

// boxBlur applies an r-radius box filter. BRIEF sampling compares blurred
// intensities so single-pixel noise does not flip descriptor bits.
func boxBlur(src *image.Gray, r int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	// Horizontal then vertical pass over a float buffer.
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			n := 0
			for dx := -r; dx <= r; dx++ {
				xx := x + dx
				if xx < 0 || xx >= w {
					continue
				}
				sum += float64(src.Pix[y*src.Stride+xx])
				n++
			}
			tmp[y*w+x] = sum / float64(n)
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			n := 0
			for dy := -r; dy <= r; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				sum += tmp[yy*w+x]
				n++
			}
			dst.Pix[y*dst.Stride+x] = uint8(math.Round(sum / float64(n)))
		}
	}
	return dst
}
