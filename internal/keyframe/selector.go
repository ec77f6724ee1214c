// Package keyframe decides which source frames are worth keeping. The
// selector is a single forward pass over the frame stream: blur gates
// first, then the frame interval, then the motion gate against the
// previously kept frame.
package keyframe

import (
	"image"

	"github.com/amtellezfernandez/lidar-pc/internal/imgfeat"
)

// Params holds the selection thresholds.
type Params struct {
	Interval            int     // keep candidates every N source frames
	BlurThreshold       float64 // minimum Laplacian variance to consider a frame
	PixelDeltaThreshold float64 // minimum mean abs diff against the last kept frame
}

// DefaultParams returns the selection thresholds the capture stage ships
// with.
func DefaultParams() Params {
	return Params{
		Interval:            4,
		BlurThreshold:       40.0,
		PixelDeltaThreshold: 10.0,
	}
}

// Selector carries the only state keyframe selection needs between calls:
// the grayscale image of the previously kept frame. The zero value (plus
// params) is ready to use; selection is not restartable mid-stream because
// that state cannot be reconstructed without replaying from frame zero.
type Selector struct {
	params   Params
	prevKept *image.Gray
}

// NewSelector returns a selector with the given thresholds.
func NewSelector(params Params) *Selector {
	return &Selector{params: params}
}

// Keep reports whether the frame at frameIndex should become a keyframe
// and, on a keep decision, records it as the new comparison baseline.
//
// Decision order: frame 0 is always kept; blurry frames are always
// rejected; before any frame has been kept only the interval gate applies;
// afterwards both the interval and the motion gate must pass.
func (s *Selector) Keep(gray *image.Gray, frameIndex int, blurScore float64) bool {
	keep := s.decide(gray, frameIndex, blurScore)
	if keep {
		s.prevKept = gray
	}
	return keep
}

func (s *Selector) decide(gray *image.Gray, frameIndex int, blurScore float64) bool {
	if frameIndex == 0 {
		return true
	}
	if blurScore < s.params.BlurThreshold {
		return false
	}

	interval := s.params.Interval
	if interval < 1 {
		interval = 1
	}
	onInterval := frameIndex%interval == 0

	if s.prevKept == nil {
		return onInterval
	}
	return onInterval && imgfeat.MeanAbsDiff(s.prevKept, gray) >= s.params.PixelDeltaThreshold
}
