// Package tracking implements sequential monocular visual odometry over a
// session's keyframes. Each consecutive keyframe pair contributes one
// relative motion estimate; the accumulated world pose is a strict
// left-to-right fold, so steps always execute in keyframe order.
package tracking

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/amtellezfernandez/lidar-pc/internal/epipolar"
	"github.com/amtellezfernandez/lidar-pc/internal/geom"
	"github.com/amtellezfernandez/lidar-pc/internal/imgfeat"
	"github.com/amtellezfernandez/lidar-pc/internal/monitoring"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
)

// minPairFeatures is the floor below which a step cannot be estimated:
// the eight-point solver needs eight correspondences.
const minPairFeatures = 8

// Params configures the tracker.
type Params struct {
	MinInliers int     // classification floor; 2x this is "good"
	StepScaleM float64 // fixed per-step translation magnitude in meters
	Seed       int64   // RANSAC seed; 0 seeds from the clock
}

// DefaultParams returns the tracker's shipping configuration.
func DefaultParams() Params {
	return Params{
		MinInliers: 30,
		StepScaleM: 0.1,
	}
}

// Summary reports the outcome of a tracking run.
type Summary struct {
	TrajectoryPath string
	PoseCount      int
	GoodRatio      float64
}

// Run tracks camera motion across the session's keyframes and persists
// the trajectory artifact. Per-pair failures (unreadable images, too few
// features or matches, estimation failure) downgrade the step to "lost"
// and carry the world pose forward; they never abort the run. The only
// fatal condition is a session with no keyframes.
func Run(dir session.Dir, params Params) (Summary, error) {
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

	k := epipolar.CameraMatrix(intr.Fx, intr.Fy, intr.Cx, intr.Cy)
	detector := imgfeat.DefaultDetector()
	ransac := epipolar.DefaultRANSACParams()
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	worldR := geom.IdentityRotation()
	var worldT [3]float64

	poses := make([]session.TrajectoryPose, 0, len(records))
	poses = append(poses, session.IdentityPose(records[0].FrameIndex, records[0].KeyframeIndex, session.StateGood))

	for idx := 1; idx < len(records); idx++ {
		current := records[idx]
		rel, state := trackPair(dir, records[idx-1], current, k, detector, ransac, rng, params.MinInliers)

		if state != session.StateLost {
			// Monocular scale is unrecoverable; pin each step to a fixed
			// stride instead.
			t := rescale(rel.T, params.StepScaleM)
			dx, dy, dz := worldR.Apply(t[0], t[1], t[2])
			worldT[0] += dx
			worldT[1] += dy
			worldT[2] += dz
			worldR = worldR.Mul(rel.R)
		}

		poses = append(poses, session.TrajectoryPose{
			FrameIndex:     current.FrameIndex,
			KeyframeIndex:  current.KeyframeIndex,
			TranslationM:   worldT,
			QuaternionXYZW: geom.RotationToQuaternion(worldR),
			TrackingState:  state,
			PoseSource:     session.PoseSource,
		})
	}

	goodCount := 0
	for _, p := range poses {
		if p.TrackingState == session.StateGood {
			goodCount++
		}
	}
	goodRatio := float64(goodCount) / float64(len(poses))

	tf := session.TrajectoryFile{
		SchemaVersion: session.SchemaVersion,
		PoseSource:    session.PoseSource,
		Poses:         poses,
		Metrics: session.TrajectoryMetrics{
			PoseCount: len(poses),
			GoodRatio: goodRatio,
		},
	}
	if err := session.WriteJSON(dir.TrajectoryPath(), tf); err != nil {
		return Summary{}, err
	}

	monitoring.Logf("tracking: %d poses, good ratio %.2f", len(poses), goodRatio)
	return Summary{
		TrajectoryPath: dir.TrajectoryPath(),
		PoseCount:      len(poses),
		GoodRatio:      goodRatio,
	}, nil
}

// trackPair estimates the relative motion between two keyframes. Any
// failure (unreadable image, too few features or matches, estimation
// failure, too few cheirality inliers) returns the "lost" state.
func trackPair(
	dir session.Dir,
	previous, current session.FrameRecord,
	k *mat.Dense,
	detector *imgfeat.Detector,
	ransac epipolar.RANSACParams,
	rng *rand.Rand,
	minInliers int,
) (epipolar.RelativePose, session.TrackingState) {
	prevImg, err := imgfeat.LoadGray(dir.ResolveImage(previous))
	if err != nil {
		monitoring.Logf("tracking: keyframe %d unreadable: %v", previous.KeyframeIndex, err)
		return epipolar.RelativePose{}, session.StateLost
	}
	currImg, err := imgfeat.LoadGray(dir.ResolveImage(current))
	if err != nil {
		monitoring.Logf("tracking: keyframe %d unreadable: %v", current.KeyframeIndex, err)
		return epipolar.RelativePose{}, session.StateLost
	}

	kp1, desc1 := detector.DetectAndCompute(prevImg)
	kp2, desc2 := detector.DetectAndCompute(currImg)
	if len(kp1) < minPairFeatures || len(kp2) < minPairFeatures {
		return epipolar.RelativePose{}, session.StateLost
	}

	matches := imgfeat.MatchDescriptors(desc1, desc2)
	if len(matches) < minPairFeatures {
		return epipolar.RelativePose{}, session.StateLost
	}

	pts1 := make([]epipolar.Point2, len(matches))
	pts2 := make([]epipolar.Point2, len(matches))
	for i, m := range matches {
		pts1[i] = epipolar.Point2{X: kp1[m.QueryIdx].X, Y: kp1[m.QueryIdx].Y}
		pts2[i] = epipolar.Point2{X: kp2[m.TrainIdx].X, Y: kp2[m.TrainIdx].Y}
	}

	est, err := epipolar.EstimateEssential(pts1, pts2, k, ransac, rng)
	if err != nil {
		return epipolar.RelativePose{}, session.StateLost
	}
	rel, err := epipolar.RecoverPose(est.E, pts1, pts2, k, est.Inliers)
	if err != nil {
		return epipolar.RelativePose{}, session.StateLost
	}

	return rel, classifyState(rel.Inliers, minInliers)
}

// rescale returns t scaled to the given magnitude; near-zero vectors are
// returned unchanged to avoid dividing by zero.
func rescale(t [3]float64, magnitude float64) [3]float64 {
	norm := math.Sqrt(t[0]*t[0] + t[1]*t[1] + t[2]*t[2])
	if norm <= 1e-8 {
		return t
	}
	s := magnitude / norm
	return [3]float64{t[0] * s, t[1] * s, t[2] * s}
}

// classifyState maps an inlier count to a tracking state.
func classifyState(inliers, minInliers int) session.TrackingState {
	switch {
	case inliers >= minInliers*2:
		return session.StateGood
	case inliers >= minInliers:
		return session.StateLimited
	default:
		return session.StateLost
	}
}
