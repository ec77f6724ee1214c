package keyframe

import (
	"testing"

	"github.com/amtellezfernandez/lidar-pc/internal/testutil"
)

func TestKeep_FrameZeroAlwaysKept(t *testing.T) {
	s := NewSelector(DefaultParams())
	img := testutil.UniformImage(64, 64, 0)
	// Even a fully blurred frame 0 is kept.
	if !s.Keep(img, 0, 0.0) {
		t.Error("frame 0 must always be kept")
	}
}

func TestKeep_BlurRejectsRegardlessOfOtherGates(t *testing.T) {
	p := DefaultParams()
	p.Interval = 1
	p.PixelDeltaThreshold = 0
	s := NewSelector(p)
	img := testutil.NoiseImage(64, 64, 1)
	s.Keep(img, 0, 100)

	// Interval and motion gates would both pass, blur must still reject.
	if s.Keep(testutil.NoiseImage(64, 64, 2), 1, p.BlurThreshold-0.01) {
		t.Error("blurry frame must never be kept")
	}
}

func TestKeep_IntervalOnlyBeforeFirstKeep(t *testing.T) {
	s := NewSelector(Params{Interval: 4, BlurThreshold: 10, PixelDeltaThreshold: 1000})
	img := testutil.NoiseImage(64, 64, 3)

	// No previous kept frame: the (unsatisfiable) motion gate must not apply.
	if s.decide(img, 3, 100) {
		t.Error("off-interval frame kept")
	}
	if !s.decide(img, 4, 100) {
		t.Error("on-interval frame should be kept when no baseline exists")
	}
}

func TestKeep_MotionGate(t *testing.T) {
	p := Params{Interval: 2, BlurThreshold: 0, PixelDeltaThreshold: 15}
	s := NewSelector(p)

	base := testutil.UniformImage(64, 64, 100)
	if !s.Keep(base, 0, 50) {
		t.Fatal("frame 0 must be kept")
	}

	// On interval but nearly identical: motion gate rejects.
	if s.Keep(testutil.UniformImage(64, 64, 105), 2, 50) {
		t.Error("static frame should be rejected by the motion gate")
	}

	// On interval with a large intensity change: kept, baseline updates.
	moved := testutil.UniformImage(64, 64, 200)
	if !s.Keep(moved, 4, 50) {
		t.Fatal("moving frame should be kept")
	}

	// The baseline is now the frame kept above, not frame 0.
	if s.Keep(testutil.UniformImage(64, 64, 205), 6, 50) {
		t.Error("baseline should have advanced to the last kept frame")
	}
}

func TestKeep_RejectedFrameDoesNotUpdateBaseline(t *testing.T) {
	p := Params{Interval: 1, BlurThreshold: 0, PixelDeltaThreshold: 50}
	s := NewSelector(p)
	s.Keep(testutil.UniformImage(64, 64, 0), 0, 10)

	// Rejected by motion gate; baseline must stay at frame 0 so the
	// cumulative change eventually passes.
	if s.Keep(testutil.UniformImage(64, 64, 30), 1, 10) {
		t.Fatal("30-level change should reject at threshold 50")
	}
	if !s.Keep(testutil.UniformImage(64, 64, 60), 2, 10) {
		t.Error("60-level change from the retained baseline should pass")
	}
}

func TestKeep_ZeroIntervalTreatedAsOne(t *testing.T) {
	s := NewSelector(Params{Interval: 0, BlurThreshold: 0, PixelDeltaThreshold: 0})
	s.Keep(testutil.NoiseImage(64, 64, 4), 0, 10)
	if !s.Keep(testutil.NoiseImage(64, 64, 5), 1, 10) {
		t.Error("interval 0 should behave like interval 1")
	}
}
