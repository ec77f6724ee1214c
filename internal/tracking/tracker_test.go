package tracking

import (
	"image"
	"testing"

	"github.com/amtellezfernandez/lidar-pc/internal/geom"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
	"github.com/amtellezfernandez/lidar-pc/internal/testutil"
)

func testParams() Params {
	p := DefaultParams()
	p.MinInliers = 8
	p.Seed = 1
	return p
}

func runOn(t *testing.T, images []*image.Gray, params Params) (Summary, session.TrajectoryFile) {
	t.Helper()
	dir := testutil.WriteSessionFixture(t, t.TempDir(), images, testutil.DefaultIntrinsics())
	sum, err := Run(dir, params)
	if err != nil {
		t.Fatalf("tracking run: %v", err)
	}
	tf, err := session.LoadTrajectory(dir)
	if err != nil {
		t.Fatalf("load trajectory: %v", err)
	}
	return sum, tf
}

func TestRun_HorizontalShiftPair(t *testing.T) {
	// Scenario: two keyframes related by a pure horizontal pixel shift
	// with ample texture.
	base := testutil.NoiseImage(320, 240, 21)
	images := []*image.Gray{base, testutil.ShiftImage(base, 10, 0)}

	sum, tf := runOn(t, images, testParams())
	if sum.PoseCount != 2 {
		t.Fatalf("expected 2 poses, got %d", sum.PoseCount)
	}
	st := tf.Poses[1].TrackingState
	if st != session.StateGood && st != session.StateLimited {
		t.Errorf("expected good or limited tracking across a textured shift, got %q", st)
	}
	if tf.Poses[1].TrackingState != session.StateLost && tf.Poses[1].TranslationM == tf.Poses[0].TranslationM {
		t.Error("tracked step should move the world translation")
	}
}

func TestRun_FirstPoseIsIdentity(t *testing.T) {
	images := []*image.Gray{testutil.NoiseImage(320, 240, 1)}
	sum, tf := runOn(t, images, testParams())

	if sum.PoseCount != 1 {
		t.Fatalf("expected 1 pose, got %d", sum.PoseCount)
	}
	p := tf.Poses[0]
	if p.TranslationM != [3]float64{} {
		t.Errorf("pose 0 translation must be zero, got %v", p.TranslationM)
	}
	if p.QuaternionXYZW != geom.IdentityQuaternion() {
		t.Errorf("pose 0 quaternion must be identity, got %v", p.QuaternionXYZW)
	}
	if p.TrackingState != session.StateGood {
		t.Errorf("pose 0 state must be good, got %q", p.TrackingState)
	}
}

func TestRun_FeaturelessPairIsLost(t *testing.T) {
	// Scenario: a uniform black frame against a uniform white frame has
	// zero extractable features.
	images := []*image.Gray{
		testutil.UniformImage(320, 240, 0),
		testutil.UniformImage(320, 240, 255),
	}
	sum, tf := runOn(t, images, testParams())

	if sum.PoseCount != 2 {
		t.Fatalf("expected 2 poses, got %d", sum.PoseCount)
	}
	if tf.Poses[1].TrackingState != session.StateLost {
		t.Errorf("expected lost state, got %q", tf.Poses[1].TrackingState)
	}
	if tf.Poses[1].TranslationM != tf.Poses[0].TranslationM {
		t.Error("lost step must carry the previous translation forward")
	}
}

func TestRun_GoodRatioOverRepeatedShifts(t *testing.T) {
	// Five keyframes where every consecutive pair shares abundant exact
	// matches; with MinInliers=8 every step should classify as good.
	base := testutil.NoiseImage(320, 240, 33)
	images := []*image.Gray{
		base,
		testutil.ShiftImage(base, 8, 0),
		testutil.ShiftImage(base, 16, 0),
		testutil.ShiftImage(base, 24, 0),
		testutil.ShiftImage(base, 32, 0),
	}
	sum, tf := runOn(t, images, testParams())

	if sum.PoseCount != 5 {
		t.Fatalf("expected 5 poses, got %d", sum.PoseCount)
	}
	if sum.GoodRatio != 1.0 {
		t.Errorf("expected good ratio 1.0, got %f", sum.GoodRatio)
	}
	if tf.Poses[4].TrackingState != session.StateGood {
		t.Errorf("expected final pose good, got %q", tf.Poses[4].TrackingState)
	}
	if len(tf.Poses) != 5 {
		t.Errorf("trajectory length must equal keyframe count, got %d", len(tf.Poses))
	}
}

func TestRun_UnreadableImageIsLostNotFatal(t *testing.T) {
	base := testutil.NoiseImage(320, 240, 40)
	dir := testutil.WriteSessionFixture(t, t.TempDir(), []*image.Gray{base, testutil.ShiftImage(base, 6, 0)}, testutil.DefaultIntrinsics())

	// Point the second record at a missing file.
	records, err := session.LoadFrameRecords(dir)
	if err != nil {
		t.Fatal(err)
	}
	records[1].RelativeRGBPath = "rgb/missing.png"
	if err := session.WriteFrameRecords(dir.FramesPath(), records); err != nil {
		t.Fatal(err)
	}

	sum, err := Run(dir, testParams())
	if err != nil {
		t.Fatalf("unreadable image must not be fatal: %v", err)
	}
	tf, err := session.LoadTrajectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.PoseCount != 2 || tf.Poses[1].TrackingState != session.StateLost {
		t.Errorf("expected lost pose for unreadable image, got %+v", tf.Poses[1])
	}
}

func TestRun_EmptySessionIsFatal(t *testing.T) {
	dir := session.Dir{Root: t.TempDir()}
	if err := session.WriteFrameRecords(dir.FramesPath(), nil); err != nil {
		t.Fatal(err)
	}
	if err := session.WriteJSON(dir.IntrinsicsPath(), testutil.DefaultIntrinsics()); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(dir, testParams()); err == nil {
		t.Error("expected error for a session with no keyframes")
	}
}

func TestClassifyState(t *testing.T) {
	cases := []struct {
		inliers int
		want    session.TrackingState
	}{
		{0, session.StateLost},
		{7, session.StateLost},
		{8, session.StateLimited},
		{15, session.StateLimited},
		{16, session.StateGood},
		{100, session.StateGood},
	}
	for _, tc := range cases {
		if got := classifyState(tc.inliers, 8); got != tc.want {
			t.Errorf("classifyState(%d, 8) = %q, want %q", tc.inliers, got, tc.want)
		}
	}
}

func TestRescale(t *testing.T) {
	got := rescale([3]float64{3, 0, 4}, 0.1)
	if got[0] != 0.06 || got[1] != 0 || got[2] != 0.08 {
		t.Errorf("unexpected rescale result: %v", got)
	}

	zero := rescale([3]float64{}, 0.1)
	if zero != [3]float64{} {
		t.Errorf("near-zero vectors must pass through, got %v", zero)
	}
}
