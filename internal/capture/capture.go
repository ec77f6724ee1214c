// Package capture ingests an ordered set of image files into a new
// session: each source frame is blur-scored, run through the keyframe
// selector, and kept frames are written out with their records and the
// camera intrinsics.
package capture

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/amtellezfernandez/lidar-pc/internal/imgfeat"
	"github.com/amtellezfernandez/lidar-pc/internal/keyframe"
	"github.com/amtellezfernandez/lidar-pc/internal/monitoring"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
)

// jpegQuality balances keyframe fidelity against session size.
const jpegQuality = 92

// Params configures an ingest run.
type Params struct {
	SourceDir       string // directory of input images, read in name order
	OutputRoot      string // sessions are allocated under this root
	SessionID       string // empty means a generated id
	MaxFrames       int    // stop after this many source frames; 0 is unlimited
	CalibrationPath string // optional intrinsics JSON; empty infers a model
	Keyframe        keyframe.Params
}

// DefaultParams returns the shipping ingest configuration.
func DefaultParams() Params {
	return Params{
		Keyframe: keyframe.DefaultParams(),
	}
}

// Summary reports the outcome of an ingest run.
type Summary struct {
	Dir           session.Dir
	SessionID     string
	FramesSeen    int
	KeyframesKept int
}

// Run ingests the source directory into a freshly allocated session.
// Unreadable source images are skipped; a run that keeps zero keyframes
// is fatal because nothing downstream can work with it.
func Run(params Params) (Summary, error) {
	files, err := listImages(params.SourceDir)
	if err != nil {
		return Summary{}, err
	}
	if params.MaxFrames > 0 && len(files) > params.MaxFrames {
		files = files[:params.MaxFrames]
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}
	dir, err := session.Allocate(params.OutputRoot, sessionID)
	if err != nil {
		return Summary{}, err
	}

	selector := keyframe.NewSelector(params.Keyframe)
	var records []session.FrameRecord
	for frameIndex, path := range files {
		img, err := imgfeat.LoadImage(path)
		if err != nil {
			monitoring.Logf("capture: skipping %s: %v", path, err)
			continue
		}
		gray := imgfeat.ToGray(img)
		blur := imgfeat.LaplacianVariance(gray)
		if !selector.Keep(gray, frameIndex, blur) {
			continue
		}

		keyframeIndex := len(records)
		rel := fmt.Sprintf("rgb/frame_%06d.jpg", keyframeIndex)
		if err := writeJPEG(filepath.Join(dir.Root, filepath.FromSlash(rel)), img); err != nil {
			return Summary{}, err
		}
		records = append(records, session.FrameRecord{
			FrameIndex:      frameIndex,
			KeyframeIndex:   keyframeIndex,
			RelativeRGBPath: rel,
			TCaptureNS:      session.NowCaptureNS(),
			TWallMS:         session.NowWallMS(),
			Width:           gray.Rect.Dx(),
			Height:          gray.Rect.Dy(),
			BlurScore:       blur,
		})
	}

	if len(records) == 0 {
		return Summary{}, fmt.Errorf("capture kept no keyframes from %s", params.SourceDir)
	}

	intr, err := resolveIntrinsics(params.CalibrationPath, records[0])
	if err != nil {
		return Summary{}, err
	}
	if err := session.WriteJSON(dir.IntrinsicsPath(), intr); err != nil {
		return Summary{}, err
	}
	if err := session.WriteFrameRecords(dir.FramesPath(), records); err != nil {
		return Summary{}, err
	}
	if err := session.WriteJSON(dir.MetaPath(), session.Meta{
		SchemaVersion: session.SchemaVersion,
		SessionID:     sessionID,
		CaptureMode:   "keyframes",
		Source:        params.SourceDir,
		MaxFrames:     params.MaxFrames,
		KeyframeCount: len(records),
		CreatedAtMS:   session.NowWallMS(),
	}); err != nil {
		return Summary{}, err
	}

	monitoring.Logf("capture: kept %d of %d frames into %s", len(records), len(files), dir.Root)
	return Summary{
		Dir:           dir,
		SessionID:     sessionID,
		FramesSeen:    len(files),
		KeyframesKept: len(records),
	}, nil
}

// listImages returns the image files of a directory in name order.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// resolveIntrinsics loads the calibration file when given, otherwise
// infers a pinhole model from the frame size: focal length is the larger
// image dimension and the principal point sits at the center.
func resolveIntrinsics(calibrationPath string, first session.FrameRecord) (session.Intrinsics, error) {
	if calibrationPath != "" {
		var intr session.Intrinsics
		if err := session.ReadJSON(calibrationPath, &intr); err != nil {
			return session.Intrinsics{}, err
		}
		if intr.Fx <= 0 || intr.Fy <= 0 {
			return session.Intrinsics{}, fmt.Errorf("calibration %s has non-positive focal length", calibrationPath)
		}
		return intr, nil
	}

	focal := float64(max(first.Width, first.Height))
	return session.Intrinsics{
		CameraID: "file_import",
		Version:  1,
		Fx:       focal,
		Fy:       focal,
		Cx:       float64(first.Width) / 2,
		Cy:       float64(first.Height) / 2,
	}, nil
}

func writeJPEG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
