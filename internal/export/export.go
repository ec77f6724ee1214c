// Package export bundles a session into per-keyframe capture packets: a
// JSON record joining the keyframe, its checksummed image payload, the
// camera model and the trajectory pose, plus a manifest tying the bundle
// together.
package export

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amtellezfernandez/lidar-pc/internal/monitoring"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
)

// Packet is one exported keyframe.
type Packet struct {
	SchemaVersion string                 `json:"schema_version"`
	SessionID     string                 `json:"session_id"`
	FrameIndex    int                    `json:"frame_index"`
	KeyframeIndex int                    `json:"keyframe_index"`
	RGBPath       string                 `json:"rgb_path"`
	RGBSha256     string                 `json:"rgb_sha256"`
	BlurScore     float64                `json:"blur_score"`
	Intrinsics    session.Intrinsics     `json:"intrinsics"`
	Pose          session.TrajectoryPose `json:"pose"`
}

// Manifest indexes an export bundle.
type Manifest struct {
	SchemaVersion string            `json:"schema_version"`
	SessionID     string            `json:"session_id"`
	PacketCount   int               `json:"packet_count"`
	Packets       []ManifestPacket  `json:"packets"`
	Artifacts     map[string]string `json:"artifacts"`
}

// ManifestPacket names one packet file and its content checksum.
type ManifestPacket struct {
	Path   string `json:"path"`
	Sha256 string `json:"sha256"`
}

// Summary reports the outcome of an export run.
type Summary struct {
	ManifestPath string
	PacketCount  int
}

// Run exports every keyframe of the session. A keyframe without a
// trajectory pose gets an identity pose in the "limited" state, so
// sessions exported before tracking still produce a complete bundle.
// The only fatal condition is a session with no keyframes.
func Run(dir session.Dir) (Summary, error) {
	records, err := session.LoadFrameRecords(dir)
	if err != nil {
		return Summary{}, err
	}
	if len(records) == 0 {
		return Summary{}, fmt.Errorf("session %s has no keyframes", dir.Root)
	}
	intr, err := session.LoadIntrinsics(dir)
	if err != nil {
		return Summary{}, err
	}

	var meta session.Meta
	if err := session.ReadJSON(dir.MetaPath(), &meta); err != nil {
		meta.SessionID = filepath.Base(dir.Root)
	}

	poseByKeyframe := map[int]session.TrajectoryPose{}
	if traj, err := session.LoadTrajectory(dir); err == nil {
		for _, p := range traj.Poses {
			poseByKeyframe[p.KeyframeIndex] = p
		}
	}

	manifest := Manifest{
		SchemaVersion: session.SchemaVersion,
		SessionID:     meta.SessionID,
		Artifacts:     existingArtifacts(dir),
	}
	for _, rec := range records {
		checksum, err := fileSha256(dir.ResolveImage(rec))
		if err != nil {
			return Summary{}, fmt.Errorf("checksum keyframe %d: %w", rec.KeyframeIndex, err)
		}
		pose, ok := poseByKeyframe[rec.KeyframeIndex]
		if !ok {
			pose = session.IdentityPose(rec.FrameIndex, rec.KeyframeIndex, session.StateLimited)
		}

		packet := Packet{
			SchemaVersion: session.SchemaVersion,
			SessionID:     meta.SessionID,
			FrameIndex:    rec.FrameIndex,
			KeyframeIndex: rec.KeyframeIndex,
			RGBPath:       rec.RelativeRGBPath,
			RGBSha256:     checksum,
			BlurScore:     rec.BlurScore,
			Intrinsics:    intr,
			Pose:          pose,
		}
		rel := fmt.Sprintf("exports/capture_packets/packet_%06d.json", rec.KeyframeIndex)
		path := filepath.Join(dir.Root, filepath.FromSlash(rel))
		if err := session.WriteJSON(path, packet); err != nil {
			return Summary{}, err
		}
		packetSum, err := fileSha256(path)
		if err != nil {
			return Summary{}, err
		}
		manifest.Packets = append(manifest.Packets, ManifestPacket{Path: rel, Sha256: packetSum})
	}

	manifest.PacketCount = len(manifest.Packets)
	if err := session.WriteJSON(dir.ManifestPath(), manifest); err != nil {
		return Summary{}, err
	}

	monitoring.Logf("export: %d packets into %s", manifest.PacketCount, dir.ExportsDir())
	return Summary{ManifestPath: dir.ManifestPath(), PacketCount: manifest.PacketCount}, nil
}

// existingArtifacts maps artifact names to session-relative paths for
// every pipeline output that is actually present.
func existingArtifacts(dir session.Dir) map[string]string {
	candidates := map[string]string{
		"trajectory":     dir.TrajectoryPath(),
		"pointcloud":     dir.PointCloudPath(),
		"mesh":           dir.MeshPath(),
		"reconstruction": dir.ReconstructionPath(),
	}
	out := map[string]string{}
	for name, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if rel, err := filepath.Rel(dir.Root, path); err == nil {
				out[name] = filepath.ToSlash(rel)
			}
		}
	}
	return out
}

func fileSha256(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
