package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/amtellezfernandez/lidar-pc/internal/keyframe"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
	"github.com/amtellezfernandez/lidar-pc/internal/testutil"
)

// writeSourceFrames lays out numbered textured PNGs in a fresh dir.
func writeSourceFrames(t *testing.T, n int) string {
	t.Helper()
	src := t.TempDir()
	for i := 0; i < n; i++ {
		img := testutil.NoiseImage(320, 240, int64(i+1))
		testutil.WritePNG(t, filepath.Join(src, fmt.Sprintf("img_%03d.png", i)), img)
	}
	return src
}

func TestRun_KeepsIntervalFrames(t *testing.T) {
	src := writeSourceFrames(t, 9)
	params := DefaultParams()
	params.SourceDir = src
	params.OutputRoot = t.TempDir()
	params.SessionID = "scan"
	// Noise frames differ everywhere, so only blur and interval gate.
	params.Keyframe = keyframe.Params{Interval: 4, BlurThreshold: 1, PixelDeltaThreshold: 1}

	sum, err := Run(params)
	if err != nil {
		t.Fatalf("capture run: %v", err)
	}
	// Frames 0, 4 and 8 pass the interval gate.
	if sum.KeyframesKept != 3 {
		t.Fatalf("expected 3 keyframes, got %d", sum.KeyframesKept)
	}
	if sum.FramesSeen != 9 {
		t.Errorf("expected 9 source frames, got %d", sum.FramesSeen)
	}

	records, err := session.LoadFrameRecords(sum.Dir)
	if err != nil {
		t.Fatal(err)
	}
	wantFrames := []int{0, 4, 8}
	for i, rec := range records {
		if rec.FrameIndex != wantFrames[i] || rec.KeyframeIndex != i {
			t.Errorf("record %d has indices (%d,%d), want (%d,%d)",
				i, rec.FrameIndex, rec.KeyframeIndex, wantFrames[i], i)
		}
		if _, err := os.Stat(sum.Dir.ResolveImage(rec)); err != nil {
			t.Errorf("keyframe image missing: %v", err)
		}
		if rec.BlurScore <= 0 {
			t.Errorf("record %d has no blur score", i)
		}
	}
}

func TestRun_InfersIntrinsics(t *testing.T) {
	src := writeSourceFrames(t, 1)
	params := DefaultParams()
	params.SourceDir = src
	params.OutputRoot = t.TempDir()

	sum, err := Run(params)
	if err != nil {
		t.Fatal(err)
	}
	intr, err := session.LoadIntrinsics(sum.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if intr.Fx != 320 || intr.Fy != 320 {
		t.Errorf("inferred focal should be the larger dimension, got fx=%v fy=%v", intr.Fx, intr.Fy)
	}
	if intr.Cx != 160 || intr.Cy != 120 {
		t.Errorf("principal point should be centered, got (%v,%v)", intr.Cx, intr.Cy)
	}
}

func TestRun_UsesCalibrationFile(t *testing.T) {
	src := writeSourceFrames(t, 1)
	calib := filepath.Join(t.TempDir(), "calib.json")
	want := session.Intrinsics{CameraID: "bench_cam", Version: 3, Fx: 611.5, Fy: 610.2, Cx: 320.1, Cy: 239.8}
	if err := session.WriteJSON(calib, want); err != nil {
		t.Fatal(err)
	}

	params := DefaultParams()
	params.SourceDir = src
	params.OutputRoot = t.TempDir()
	params.CalibrationPath = calib

	sum, err := Run(params)
	if err != nil {
		t.Fatal(err)
	}
	got, err := session.LoadIntrinsics(sum.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("intrinsics = %+v, want %+v", got, want)
	}
}

func TestRun_MaxFramesTruncates(t *testing.T) {
	src := writeSourceFrames(t, 12)
	params := DefaultParams()
	params.SourceDir = src
	params.OutputRoot = t.TempDir()
	params.MaxFrames = 5
	params.Keyframe = keyframe.Params{Interval: 1, BlurThreshold: 1, PixelDeltaThreshold: 1}

	sum, err := Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if sum.FramesSeen != 5 {
		t.Errorf("expected 5 frames seen, got %d", sum.FramesSeen)
	}
}

func TestRun_EmptySourceIsFatal(t *testing.T) {
	params := DefaultParams()
	params.SourceDir = t.TempDir()
	params.OutputRoot = t.TempDir()

	if _, err := Run(params); err == nil {
		t.Error("expected error when the source dir has no images")
	}
}

func TestRun_WritesSessionMeta(t *testing.T) {
	src := writeSourceFrames(t, 1)
	params := DefaultParams()
	params.SourceDir = src
	params.OutputRoot = t.TempDir()
	params.SessionID = "meta_check"

	sum, err := Run(params)
	if err != nil {
		t.Fatal(err)
	}
	var meta session.Meta
	if err := session.ReadJSON(sum.Dir.MetaPath(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.SessionID != "meta_check" || meta.KeyframeCount != 1 || meta.SchemaVersion != session.SchemaVersion {
		t.Errorf("unexpected session meta: %+v", meta)
	}
}
