package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dir is a session directory handle. All artifact paths hang off the
// session root:
//
//	rgb/frame_000000.png        keyframe images
//	meta/intrinsics.json        camera model
//	meta/frames.jsonl           keyframe records, one per line
//	meta/session.json           session metadata
//	meta/trajectory.json        pose tracker output
//	reconstruction/             point cloud, mesh, summary
//	exports/                    capture packets and manifest
type Dir struct {
	Root string
}

// Artifact path accessors.

func (d Dir) RGBDir() string             { return filepath.Join(d.Root, "rgb") }
func (d Dir) MetaDir() string            { return filepath.Join(d.Root, "meta") }
func (d Dir) ReconstructionDir() string  { return filepath.Join(d.Root, "reconstruction") }
func (d Dir) ExportsDir() string         { return filepath.Join(d.Root, "exports") }
func (d Dir) PacketsDir() string         { return filepath.Join(d.ExportsDir(), "capture_packets") }
func (d Dir) IntrinsicsPath() string     { return filepath.Join(d.MetaDir(), "intrinsics.json") }
func (d Dir) FramesPath() string         { return filepath.Join(d.MetaDir(), "frames.jsonl") }
func (d Dir) MetaPath() string           { return filepath.Join(d.MetaDir(), "session.json") }
func (d Dir) TrajectoryPath() string     { return filepath.Join(d.MetaDir(), "trajectory.json") }
func (d Dir) PointCloudPath() string     { return filepath.Join(d.ReconstructionDir(), "pointcloud.ply") }
func (d Dir) MeshPath() string           { return filepath.Join(d.ReconstructionDir(), "mesh.ply") }
func (d Dir) ReconstructionPath() string { return filepath.Join(d.ReconstructionDir(), "reconstruction.json") }
func (d Dir) ManifestPath() string       { return filepath.Join(d.ExportsDir(), "manifest.json") }

// ResolveImage turns a FrameRecord's relative path into an absolute one.
func (d Dir) ResolveImage(rec FrameRecord) string {
	return filepath.Join(d.Root, filepath.FromSlash(rec.RelativeRGBPath))
}

// NewSessionID returns a timestamped, collision-resistant session
// identifier.
func NewSessionID() string {
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("session_%s_%s", time.Now().Format("20060102_150405"), short)
}

// Allocate picks a fresh directory for the session under outputRoot. An
// existing empty directory is reused; an occupied one gets a _runNN
// suffix so repeated captures under the same id never overwrite.
func Allocate(outputRoot, sessionID string) (Dir, error) {
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return Dir{}, fmt.Errorf("create output root: %w", err)
	}

	base := filepath.Join(outputRoot, sessionID)
	if empty, err := isMissingOrEmpty(base); err != nil {
		return Dir{}, err
	} else if empty {
		return Dir{Root: base}, nil
	}

	for index := 2; ; index++ {
		candidate := filepath.Join(outputRoot, fmt.Sprintf("%s_run%02d", sessionID, index))
		if empty, err := isMissingOrEmpty(candidate); err != nil {
			return Dir{}, err
		} else if empty {
			return Dir{Root: candidate}, nil
		}
	}
}

func isMissingOrEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", path, err)
	}
	return len(entries) == 0, nil
}

// WriteJSON marshals v with indentation and writes it to path, creating
// parent directories as needed.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadJSON unmarshals the file at path into out.
func ReadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// WriteFrameRecords persists keyframe records as JSON lines.
func WriteFrameRecords(path string, records []FrameRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode frame record: %w", err)
		}
	}
	return w.Flush()
}

// LoadFrameRecords reads the session's keyframe records, skipping blank
// lines.
func LoadFrameRecords(d Dir) ([]FrameRecord, error) {
	f, err := os.Open(d.FramesPath())
	if err != nil {
		return nil, fmt.Errorf("open frame records: %w", err)
	}
	defer f.Close()

	var records []FrameRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec FrameRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("parse frame record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan frame records: %w", err)
	}
	return records, nil
}

// LoadIntrinsics reads the session's camera model.
func LoadIntrinsics(d Dir) (Intrinsics, error) {
	var in Intrinsics
	if err := ReadJSON(d.IntrinsicsPath(), &in); err != nil {
		return Intrinsics{}, err
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return Intrinsics{}, fmt.Errorf("invalid intrinsics: fx=%f fy=%f", in.Fx, in.Fy)
	}
	return in, nil
}

// LoadTrajectory reads the pose tracker's trajectory artifact.
func LoadTrajectory(d Dir) (TrajectoryFile, error) {
	var tf TrajectoryFile
	if err := ReadJSON(d.TrajectoryPath(), &tf); err != nil {
		return TrajectoryFile{}, err
	}
	return tf, nil
}

// NowWallMS returns the current wall-clock time in Unix milliseconds.
func NowWallMS() int64 {
	return time.Now().UnixMilli()
}

var processStart = time.Now()

// NowCaptureNS returns a monotonic capture timestamp in nanoseconds since
// process start. Wall-clock adjustments never move it backwards.
func NowCaptureNS() int64 {
	return int64(time.Since(processStart))
}
