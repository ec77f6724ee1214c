package imgfeat

import (
	"image"
	"math"
	"sort"
)

// Keypoint is a detected corner in full-resolution image coordinates.
// Angle is the intensity-centroid orientation in radians, used to steer the
// descriptor sampling pattern.
type Keypoint struct {
	X     float64
	Y     float64
	Score float64
	Angle float64
	Level int
}

// Detector finds FAST corners over an image pyramid and computes oriented
// binary descriptors for them.
type Detector struct {
	MaxFeatures int     // total keypoint budget across all levels
	Threshold   int     // FAST intensity threshold
	NLevels     int     // pyramid depth
	ScaleFactor float64 // per-level downscale factor
}

// DefaultDetector returns a detector tuned like the tracking front end:
// roughly two thousand corners spread over a four-level pyramid.
func DefaultDetector() *Detector {
	return &Detector{
		MaxFeatures: 2000,
		Threshold:   20,
		NLevels:     4,
		ScaleFactor: 1.2,
	}
}

// circle16 is the Bresenham circle of radius 3 used by the FAST segment
// test, in clockwise order starting at 12 o'clock.
var circle16 = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// patchMargin keeps keypoints far enough from the border that both the
// orientation patch and the rotated descriptor pattern stay in bounds.
const patchMargin = 19

// DetectAndCompute returns up to MaxFeatures keypoints with their binary
// descriptors. Keypoint coordinates are reported at full resolution
// regardless of the pyramid level they were found on.
func (d *Detector) DetectAndCompute(img *image.Gray) ([]Keypoint, []Descriptor) {
	if d.NLevels < 1 || d.ScaleFactor <= 1.0 {
		d = &Detector{MaxFeatures: d.MaxFeatures, Threshold: d.Threshold, NLevels: 1, ScaleFactor: 1.2}
	}

	// Split the feature budget across levels in proportion to level area.
	weights := make([]float64, d.NLevels)
	total := 0.0
	for i := range weights {
		weights[i] = math.Pow(d.ScaleFactor, -2*float64(i))
		total += weights[i]
	}

	var kps []Keypoint
	var descs []Descriptor
	level := img
	scale := 1.0
	for i := 0; i < d.NLevels; i++ {
		if i > 0 {
			scale *= d.ScaleFactor
			w := int(math.Round(float64(img.Rect.Dx()) / scale))
			h := int(math.Round(float64(img.Rect.Dy()) / scale))
			if w < 2*patchMargin+1 || h < 2*patchMargin+1 {
				break
			}
			level = resizeBilinear(img, w, h)
		} else if level.Rect.Dx() < 2*patchMargin+1 || level.Rect.Dy() < 2*patchMargin+1 {
			break
		}

		budget := int(math.Ceil(float64(d.MaxFeatures) * weights[i] / total))
		levelKps := detectFAST(level, d.Threshold, budget)
		blurred := boxBlur(level, 2)
		for _, kp := range levelKps {
			angle := orientation(level, int(kp.X), int(kp.Y))
			desc, ok := computeDescriptor(blurred, int(kp.X), int(kp.Y), angle)
			if !ok {
				continue
			}
			kps = append(kps, Keypoint{
				X:     kp.X * scale,
				Y:     kp.Y * scale,
				Score: kp.Score,
				Angle: angle,
				Level: i,
			})
			descs = append(descs, desc)
		}
	}
	return kps, descs
}

// detectFAST runs the FAST-9 segment test with 3x3 non-maximum suppression
// and returns the strongest corners first, capped at budget.
func detectFAST(g *image.Gray, threshold, budget int) []Keypoint {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	scores := make([]float64, w*h)

	for y := patchMargin; y < h-patchMargin; y++ {
		for x := patchMargin; x < w-patchMargin; x++ {
			s := fastScore(g, x, y, threshold)
			if s > 0 {
				scores[y*w+x] = s
			}
		}
	}

	var kps []Keypoint
	for y := patchMargin; y < h-patchMargin; y++ {
		for x := patchMargin; x < w-patchMargin; x++ {
			s := scores[y*w+x]
			if s == 0 {
				continue
			}
			// 3x3 non-max suppression; ties break toward the raster-first
			// corner so the output is deterministic.
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					n := scores[(y+dy)*w+(x+dx)]
					if n > s || (n == s && (dy < 0 || (dy == 0 && dx < 0))) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				kps = append(kps, Keypoint{X: float64(x), Y: float64(y), Score: s})
			}
		}
	}

	sort.Slice(kps, func(i, j int) bool {
		if kps[i].Score != kps[j].Score {
			return kps[i].Score > kps[j].Score
		}
		if kps[i].Y != kps[j].Y {
			return kps[i].Y < kps[j].Y
		}
		return kps[i].X < kps[j].X
	})
	if budget > 0 && len(kps) > budget {
		kps = kps[:budget]
	}
	return kps
}

// fastScore returns a positive corner score when at least nine contiguous
// circle pixels are all brighter than center+threshold or all darker than
// center-threshold, zero otherwise. The score is the summed threshold
// excess over the circle, which is what non-max suppression ranks on.
func fastScore(g *image.Gray, x, y, threshold int) float64 {
	c := int(g.Pix[y*g.Stride+x])
	hi := c + threshold
	lo := c - threshold

	// Quick reject on the four compass points: a valid arc of nine needs
	// at least three of them on the same side.
	brighter, darker := 0, 0
	for _, i := range [4]int{0, 4, 8, 12} {
		p := int(g.Pix[(y+circle16[i][1])*g.Stride+x+circle16[i][0]])
		if p > hi {
			brighter++
		} else if p < lo {
			darker++
		}
	}
	if brighter < 3 && darker < 3 {
		return 0
	}

	var vals [16]int
	for i, off := range circle16 {
		vals[i] = int(g.Pix[(y+off[1])*g.Stride+x+off[0]])
	}

	// Scan the doubled circle for a contiguous arc of nine.
	run, best := 0, 0
	for i := 0; i < 32; i++ {
		if vals[i%16] > hi {
			run++
		} else {
			run = 0
		}
		if run > best {
			best = run
		}
	}
	found := best >= 9
	if !found {
		run, best = 0, 0
		for i := 0; i < 32; i++ {
			if vals[i%16] < lo {
				run++
			} else {
				run = 0
			}
			if run > best {
				best = run
			}
		}
		found = best >= 9
	}
	if !found {
		return 0
	}

	score := 0.0
	for _, v := range vals {
		d := v - c
		if d < 0 {
			d = -d
		}
		if d > threshold {
			score += float64(d - threshold)
		}
	}
	return score
}

// orientRadius is the intensity-centroid patch radius.
const orientRadius = 15

// orientation computes the intensity-centroid angle of the patch around
// (x,y). The vector from the corner to the patch centroid gives a
// repeatable reference direction for descriptor steering.
func orientation(g *image.Gray, x, y int) float64 {
	var m10, m01 float64
	for dy := -orientRadius; dy <= orientRadius; dy++ {
		for dx := -orientRadius; dx <= orientRadius; dx++ {
			if dx*dx+dy*dy > orientRadius*orientRadius {
				continue
			}
			v := float64(g.Pix[(y+dy)*g.Stride+x+dx])
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}
