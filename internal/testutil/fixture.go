package testutil

import (
	"fmt"
	"image"
	"path/filepath"
	"testing"

	"github.com/amtellezfernandez/lidar-pc/internal/session"
)

// DefaultIntrinsics is the camera model used by fixture sessions: a
// 320x240 pinhole with centered principal point.
func DefaultIntrinsics() session.Intrinsics {
	return session.Intrinsics{
		CameraID: "test_cam",
		Version:  1,
		Fx:       320,
		Fy:       320,
		Cx:       160,
		Cy:       120,
	}
}

// WriteSessionFixture lays out a complete capture session under root: one
// PNG keyframe per image, the frames.jsonl records and the intrinsics
// file. Frame indices advance by one per keyframe.
func WriteSessionFixture(t *testing.T, root string, images []*image.Gray, intr session.Intrinsics) session.Dir {
	t.Helper()
	dir := session.Dir{Root: root}

	records := make([]session.FrameRecord, len(images))
	for i, img := range images {
		rel := fmt.Sprintf("rgb/frame_%06d.png", i)
		WritePNG(t, filepath.Join(root, filepath.FromSlash(rel)), img)
		records[i] = session.FrameRecord{
			FrameIndex:      i,
			KeyframeIndex:   i,
			RelativeRGBPath: rel,
			TCaptureNS:      int64(i) * 1e6,
			TWallMS:         int64(i),
			Width:           img.Rect.Dx(),
			Height:          img.Rect.Dy(),
			BlurScore:       100,
		}
	}

	if err := session.WriteFrameRecords(dir.FramesPath(), records); err != nil {
		t.Fatalf("write frame records: %v", err)
	}
	if err := session.WriteJSON(dir.IntrinsicsPath(), intr); err != nil {
		t.Fatalf("write intrinsics: %v", err)
	}
	if err := session.WriteJSON(dir.MetaPath(), session.Meta{
		SchemaVersion: session.SchemaVersion,
		SessionID:     filepath.Base(root),
		CaptureMode:   "keyframes",
		Source:        "images",
		KeyframeCount: len(records),
		CreatedAtMS:   session.NowWallMS(),
	}); err != nil {
		t.Fatalf("write session meta: %v", err)
	}
	return dir
}
