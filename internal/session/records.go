// Package session defines the shared records of a capture session (camera
// intrinsics, keyframe metadata, trajectory poses) and the on-disk layout
// every pipeline stage reads and writes.
package session

import "github.com/amtellezfernandez/lidar-pc/internal/geom"

// SchemaVersion tags every persisted artifact so downstream tooling can
// detect incompatible layouts.
const SchemaVersion = "v1"

// PoseSource identifies the producer of trajectory poses.
const PoseSource = "slam"

// TrackingState is the qualitative confidence label of a tracking step.
type TrackingState string

const (
	StateGood    TrackingState = "good"    // inliers >= 2 * min_inliers
	StateLimited TrackingState = "limited" // inliers >= min_inliers
	StateLost    TrackingState = "lost"    // step failed; pose carried forward
)

// Intrinsics is a pinhole camera model. Immutable once written for a
// session.
type Intrinsics struct {
	CameraID string  `json:"camera_id"`
	Version  int     `json:"version"`
	Fx       float64 `json:"fx"`
	Fy       float64 `json:"fy"`
	Cx       float64 `json:"cx"`
	Cy       float64 `json:"cy"`
}

// FrameRecord describes one kept keyframe. KeyframeIndex is dense and
// 0-based in insertion order; FrameIndex refers back to the source stream.
type FrameRecord struct {
	FrameIndex      int     `json:"frame_index"`
	KeyframeIndex   int     `json:"keyframe_index"`
	RelativeRGBPath string  `json:"relative_rgb_path"`
	TCaptureNS      int64   `json:"t_capture_ns"`
	TWallMS         int64   `json:"t_wall_ms"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	BlurScore       float64 `json:"blur_score"`
}

// TrajectoryPose is one entry of the estimated camera trajectory. The
// quaternion uses x,y,z,w component order.
type TrajectoryPose struct {
	FrameIndex     int             `json:"frame_index"`
	KeyframeIndex  int             `json:"keyframe_index"`
	TranslationM   [3]float64      `json:"translation_m"`
	QuaternionXYZW geom.Quaternion `json:"quaternion_xyzw"`
	TrackingState  TrackingState   `json:"tracking_state"`
	PoseSource     string          `json:"pose_source"`
}

// IdentityPose returns a pose at the world origin with the given indices.
func IdentityPose(frameIndex, keyframeIndex int, state TrackingState) TrajectoryPose {
	return TrajectoryPose{
		FrameIndex:     frameIndex,
		KeyframeIndex:  keyframeIndex,
		TranslationM:   [3]float64{},
		QuaternionXYZW: geom.IdentityQuaternion(),
		TrackingState:  state,
		PoseSource:     PoseSource,
	}
}

// TrajectoryMetrics aggregates per-step outcomes over a trajectory.
type TrajectoryMetrics struct {
	PoseCount int     `json:"pose_count"`
	GoodRatio float64 `json:"good_ratio"`
}

// TrajectoryFile is the persisted trajectory artifact.
type TrajectoryFile struct {
	SchemaVersion string            `json:"schema_version"`
	PoseSource    string            `json:"pose_source"`
	Poses         []TrajectoryPose  `json:"poses"`
	Metrics       TrajectoryMetrics `json:"metrics"`
}

// ReconstructionRecord is the persisted reconstruction summary artifact.
type ReconstructionRecord struct {
	SchemaVersion  string `json:"schema_version"`
	PointCount     int    `json:"point_count"`
	MeshGenerated  bool   `json:"mesh_generated"`
	QualityProfile string `json:"quality_profile"`
}

// Meta is the persisted session-level metadata record.
type Meta struct {
	SchemaVersion string `json:"schema_version"`
	SessionID     string `json:"session_id"`
	CaptureMode   string `json:"capture_mode"`
	Source        string `json:"source"`
	MaxFrames     int    `json:"max_frames"`
	KeyframeCount int    `json:"keyframe_count"`
	CreatedAtMS   int64  `json:"created_at_ms"`
}
