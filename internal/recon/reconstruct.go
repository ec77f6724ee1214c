package recon

import (
	"fmt"
	"image"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/amtellezfernandez/lidar-pc/internal/epipolar"
	"github.com/amtellezfernandez/lidar-pc/internal/geom"
	"github.com/amtellezfernandez/lidar-pc/internal/imgfeat"
	"github.com/amtellezfernandez/lidar-pc/internal/monitoring"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
)

// Quality profiles bound the number of matches triangulated per pair.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"

	highMatchCap   = 1200
	mediumMatchCap = 500
)

// MatchCap returns the per-pair match budget of a quality profile.
// Unknown profiles get the conservative medium budget.
func MatchCap(profile string) int {
	if profile == QualityHigh {
		return highMatchCap
	}
	return mediumMatchCap
}

const (
	minPairMatches  = 8
	maxPointNorm    = 100.0 // triangulated points farther out are noise
	filterMinPoints = 50    // outlier removal needs a population to judge against
	hullMinPoints   = 30
	fallbackGray    = 180
)

// Params configures a reconstruction run.
type Params struct {
	Quality string // match-budget profile, "high" or "medium"
	Workers int    // pair-level parallelism; 0 means GOMAXPROCS
	Seed    int64  // RANSAC seed; 0 seeds from the clock
}

// DefaultParams returns the shipping configuration.
func DefaultParams() Params {
	return Params{
		Quality: QualityHigh,
	}
}

// Summary reports the outcome of a reconstruction run.
type Summary struct {
	PointCloudPath string
	PointCount     int
	MeshGenerated  bool
	Quality        string
}

// Run triangulates a world-frame point cloud over the session's
// consecutive keyframe pairs and writes the reconstruction artifacts.
// Pairs are processed in parallel; each failed pair contributes zero
// points. Fatal errors are a session with no keyframes and a session
// that was never tracked.
func Run(dir session.Dir, params Params, caps Capabilities) (Summary, error) {
	records, err := session.LoadFrameRecords(dir)
	if err != nil {
		return Summary{}, err
	}
	if len(records) == 0 {
		return Summary{}, fmt.Errorf("session %s has no keyframes", dir.Root)
	}
	traj, err := session.LoadTrajectory(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("reconstruction requires a tracked trajectory: %w", err)
	}
	if len(traj.Poses) == 0 {
		return Summary{}, fmt.Errorf("session %s has an empty trajectory", dir.Root)
	}
	intr, err := session.LoadIntrinsics(dir)
	if err != nil {
		return Summary{}, err
	}

	k := epipolar.CameraMatrix(intr.Fx, intr.Fy, intr.Cx, intr.Cy)
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	pairCount := min(len(records), len(traj.Poses)) - 1
	cloud := triangulateAllPairs(dir, records, traj.Poses, k, pairCount, params, seed)

	if cloud.Len() == 0 {
		// A degenerate session still yields one gray point per pose, so
		// downstream consumers never see an empty cloud.
		for _, pose := range traj.Poses {
			cloud.Append(pose.TranslationM, [3]uint8{fallbackGray, fallbackGray, fallbackGray})
		}
	}

	if cloud.Len() > filterMinPoints {
		if filtered, err := caps.Filter.Filter(cloud); err == nil {
			cloud = filtered
		} else {
			monitoring.Logf("recon: outlier filter skipped: %v", err)
		}
	}

	// A native writer takes precedence; the ASCII writer is the
	// unconditional fallback.
	if err := caps.Writer.WriteCloud(cloud, dir.PointCloudPath()); err != nil {
		if err := WriteASCIIPLY(dir.PointCloudPath(), cloud); err != nil {
			return Summary{}, err
		}
	}

	meshGenerated := false
	if cloud.Len() >= hullMinPoints {
		if err := caps.Huller.WriteMesh(cloud, dir.MeshPath()); err == nil {
			meshGenerated = true
		} else {
			monitoring.Logf("recon: mesh export skipped: %v", err)
		}
	}

	record := session.ReconstructionRecord{
		SchemaVersion:  session.SchemaVersion,
		PointCount:     cloud.Len(),
		MeshGenerated:  meshGenerated,
		QualityProfile: params.Quality,
	}
	if err := session.WriteJSON(dir.ReconstructionPath(), record); err != nil {
		return Summary{}, err
	}

	monitoring.Logf("recon: %d points, mesh=%t, quality=%s", cloud.Len(), meshGenerated, params.Quality)
	return Summary{
		PointCloudPath: dir.PointCloudPath(),
		PointCount:     cloud.Len(),
		MeshGenerated:  meshGenerated,
		Quality:        params.Quality,
	}, nil
}

// triangulateAllPairs runs triangulatePair over a worker pool and merges
// the per-pair clouds in pair order, so the output is deterministic for
// a fixed seed regardless of worker count.
func triangulateAllPairs(
	dir session.Dir,
	records []session.FrameRecord,
	poses []session.TrajectoryPose,
	k *mat.Dense,
	pairCount int,
	params Params,
	seed int64,
) Cloud {
	var cloud Cloud
	if pairCount <= 0 {
		return cloud
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > pairCount {
		workers = pairCount
	}

	budget := MatchCap(params.Quality)
	results := make([]Cloud, pairCount)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			detector := imgfeat.DefaultDetector()
			for i := range jobs {
				// Per-pair seeding keeps the run reproducible however
				// the pairs land on workers.
				rng := rand.New(rand.NewSource(seed + int64(i)))
				results[i] = triangulatePair(dir, records[i], records[i+1], poses[i], k, detector, budget, rng)
			}
		}()
	}
	for i := 0; i < pairCount; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, r := range results {
		cloud.Merge(r)
	}
	return cloud
}

// triangulatePair detects, matches and triangulates one keyframe pair,
// returning world-frame points placed by the trajectory pose of the
// pair's first keyframe. Relative geometry for the triangulation is
// estimated fresh from this pair alone. Any failure returns an empty
// contribution.
func triangulatePair(
	dir session.Dir,
	first, second session.FrameRecord,
	pose session.TrajectoryPose,
	k *mat.Dense,
	detector *imgfeat.Detector,
	matchCap int,
	rng *rand.Rand,
) Cloud {
	var cloud Cloud

	colorImg, err := imgfeat.LoadImage(dir.ResolveImage(first))
	if err != nil {
		monitoring.Logf("recon: keyframe %d unreadable: %v", first.KeyframeIndex, err)
		return cloud
	}
	firstGray := imgfeat.ToGray(colorImg)
	secondGray, err := imgfeat.LoadGray(dir.ResolveImage(second))
	if err != nil {
		monitoring.Logf("recon: keyframe %d unreadable: %v", second.KeyframeIndex, err)
		return cloud
	}

	kp1, desc1 := detector.DetectAndCompute(firstGray)
	kp2, desc2 := detector.DetectAndCompute(secondGray)
	if len(kp1) < minPairMatches || len(kp2) < minPairMatches {
		return cloud
	}

	// MatchDescriptors returns matches sorted by distance, so the cap
	// keeps the best ones.
	matches := imgfeat.MatchDescriptors(desc1, desc2)
	if len(matches) > matchCap {
		matches = matches[:matchCap]
	}
	if len(matches) < minPairMatches {
		return cloud
	}

	pts1 := make([]epipolar.Point2, len(matches))
	pts2 := make([]epipolar.Point2, len(matches))
	for i, m := range matches {
		pts1[i] = epipolar.Point2{X: kp1[m.QueryIdx].X, Y: kp1[m.QueryIdx].Y}
		pts2[i] = epipolar.Point2{X: kp2[m.TrainIdx].X, Y: kp2[m.TrainIdx].Y}
	}

	est, err := epipolar.EstimateEssential(pts1, pts2, k, epipolar.DefaultRANSACParams(), rng)
	if err != nil {
		return cloud
	}
	rel, err := epipolar.RecoverPose(est.E, pts1, pts2, k, est.Inliers)
	if err != nil {
		return cloud
	}

	p1 := epipolar.ProjectionMatrix(k, epipolar.IdentityExtrinsics())
	p2 := epipolar.ProjectionMatrix(k, epipolar.Extrinsics(rel.R, rel.T))
	homogeneous := epipolar.TriangulatePoints(p1, p2, pts1, pts2)

	worldR := geom.QuaternionToRotation(pose.QuaternionXYZW)
	for i, h := range homogeneous {
		x, y, z, ok := euclidean(h)
		if !ok || z <= 0 {
			continue
		}
		if math.Sqrt(x*x+y*y+z*z) >= maxPointNorm {
			continue
		}

		wx, wy, wz := worldR.Apply(x, y, z)
		world := [3]float64{
			wx + pose.TranslationM[0],
			wy + pose.TranslationM[1],
			wz + pose.TranslationM[2],
		}
		cloud.Append(world, sampleColor(colorImg, pts1[i]))
	}
	return cloud
}

// euclidean converts a homogeneous point, rejecting non-finite results
// and points at infinity.
func euclidean(h [4]float64) (x, y, z float64, ok bool) {
	if h[3] == 0 {
		return 0, 0, 0, false
	}
	x = h[0] / h[3]
	y = h[1] / h[3]
	z = h[2] / h[3]
	for _, v := range [3]float64{x, y, z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, false
		}
	}
	return x, y, z, true
}

// sampleColor reads the pixel at the keypoint's location, clamping
// coordinates to the image bounds.
func sampleColor(img image.Image, p epipolar.Point2) [3]uint8 {
	b := img.Bounds()
	x := b.Min.X + clamp(int(math.Round(p.X)), 0, b.Dx()-1)
	y := b.Min.Y + clamp(int(math.Round(p.Y)), 0, b.Dy()-1)
	r, g, bl, _ := img.At(x, y).RGBA()
	return [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
