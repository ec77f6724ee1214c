package export

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/amtellezfernandez/lidar-pc/internal/geom"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
	"github.com/amtellezfernandez/lidar-pc/internal/testutil"
)

func fixtureSession(t *testing.T, n int) session.Dir {
	t.Helper()
	images := make([]*image.Gray, n)
	for i := range images {
		images[i] = testutil.NoiseImage(64, 64, int64(i+1))
	}
	return testutil.WriteSessionFixture(t, t.TempDir(), images, testutil.DefaultIntrinsics())
}

func TestRun_PacketsJoinTrajectoryPoses(t *testing.T) {
	dir := fixtureSession(t, 3)
	tracked := session.TrajectoryPose{
		FrameIndex:     1,
		KeyframeIndex:  1,
		TranslationM:   [3]float64{0.1, 0, 0.05},
		QuaternionXYZW: geom.IdentityQuaternion(),
		TrackingState:  session.StateGood,
		PoseSource:     session.PoseSource,
	}
	tf := session.TrajectoryFile{
		SchemaVersion: session.SchemaVersion,
		PoseSource:    session.PoseSource,
		Poses: []session.TrajectoryPose{
			session.IdentityPose(0, 0, session.StateGood),
			tracked,
			// Keyframe 2 intentionally has no pose.
		},
		Metrics: session.TrajectoryMetrics{PoseCount: 2, GoodRatio: 1},
	}
	if err := session.WriteJSON(dir.TrajectoryPath(), tf); err != nil {
		t.Fatal(err)
	}

	sum, err := Run(dir)
	if err != nil {
		t.Fatalf("export run: %v", err)
	}
	if sum.PacketCount != 3 {
		t.Fatalf("expected 3 packets, got %d", sum.PacketCount)
	}

	var p1 Packet
	if err := session.ReadJSON(filepath.Join(dir.PacketsDir(), "packet_000001.json"), &p1); err != nil {
		t.Fatal(err)
	}
	if p1.Pose != tracked {
		t.Errorf("packet 1 pose = %+v, want the tracked pose", p1.Pose)
	}

	var p2 Packet
	if err := session.ReadJSON(filepath.Join(dir.PacketsDir(), "packet_000002.json"), &p2); err != nil {
		t.Fatal(err)
	}
	if p2.Pose.TrackingState != session.StateLimited {
		t.Errorf("poseless keyframe should export limited state, got %q", p2.Pose.TrackingState)
	}
	if p2.Pose.TranslationM != [3]float64{} || p2.Pose.QuaternionXYZW != geom.IdentityQuaternion() {
		t.Errorf("poseless keyframe should export an identity pose, got %+v", p2.Pose)
	}
}

func TestRun_ChecksumsMatchPayloads(t *testing.T) {
	dir := fixtureSession(t, 1)
	if _, err := Run(dir); err != nil {
		t.Fatal(err)
	}

	var p Packet
	packetPath := filepath.Join(dir.PacketsDir(), "packet_000000.json")
	if err := session.ReadJSON(packetPath, &p); err != nil {
		t.Fatal(err)
	}
	rgb, err := os.ReadFile(filepath.Join(dir.Root, filepath.FromSlash(p.RGBPath)))
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(rgb)
	if p.RGBSha256 != hex.EncodeToString(sum[:]) {
		t.Error("packet rgb checksum does not match the image payload")
	}

	var manifest Manifest
	if err := session.ReadJSON(dir.ManifestPath(), &manifest); err != nil {
		t.Fatal(err)
	}
	if manifest.PacketCount != 1 || len(manifest.Packets) != 1 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	packetData, err := os.ReadFile(packetPath)
	if err != nil {
		t.Fatal(err)
	}
	psum := sha256.Sum256(packetData)
	if manifest.Packets[0].Sha256 != hex.EncodeToString(psum[:]) {
		t.Error("manifest packet checksum does not match the packet file")
	}
}

func TestRun_ManifestListsExistingArtifacts(t *testing.T) {
	dir := fixtureSession(t, 1)
	tf := session.TrajectoryFile{
		SchemaVersion: session.SchemaVersion,
		PoseSource:    session.PoseSource,
		Poses:         []session.TrajectoryPose{session.IdentityPose(0, 0, session.StateGood)},
		Metrics:       session.TrajectoryMetrics{PoseCount: 1, GoodRatio: 1},
	}
	if err := session.WriteJSON(dir.TrajectoryPath(), tf); err != nil {
		t.Fatal(err)
	}

	if _, err := Run(dir); err != nil {
		t.Fatal(err)
	}
	var manifest Manifest
	if err := session.ReadJSON(dir.ManifestPath(), &manifest); err != nil {
		t.Fatal(err)
	}
	if manifest.Artifacts["trajectory"] != "meta/trajectory.json" {
		t.Errorf("manifest should list the trajectory artifact, got %v", manifest.Artifacts)
	}
	if _, ok := manifest.Artifacts["pointcloud"]; ok {
		t.Error("manifest must not list artifacts that were never produced")
	}
}

func TestRun_NoKeyframesIsFatal(t *testing.T) {
	dir := session.Dir{Root: t.TempDir()}
	if err := session.WriteFrameRecords(dir.FramesPath(), nil); err != nil {
		t.Fatal(err)
	}
	if err := session.WriteJSON(dir.IntrinsicsPath(), testutil.DefaultIntrinsics()); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(dir); err == nil {
		t.Error("expected error for a session with no keyframes")
	}
}
