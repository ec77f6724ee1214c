package epipolar

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/amtellezfernandez/lidar-pc/internal/geom"
)

// testScene is a synthetic calibrated two-view setup with known motion.
type testScene struct {
	k     *mat.Dense
	r     geom.Rotation
	t     [3]float64 // unit length
	world [][3]float64
	pts1  []Point2
	pts2  []Point2
}

// makeScene projects random points in front of both cameras through a
// known relative motion. Noise-free, so estimators should be near-exact.
func makeScene(n int, seed int64) *testScene {
	rng := rand.New(rand.NewSource(seed))
	s := &testScene{
		k: CameraMatrix(500, 500, 320, 240),
	}

	// Small rotation about a skew axis plus a translation with a strong
	// sideways component.
	ang := 0.08
	c, sn := math.Cos(ang), math.Sin(ang)
	s.r = geom.Rotation{
		c, 0, sn,
		0, 1, 0,
		-sn, 0, c,
	}
	tn := math.Sqrt(0.5*0.5 + 0.1*0.1 + 0.15*0.15)
	s.t = [3]float64{0.5 / tn, 0.1 / tn, 0.15 / tn}

	for len(s.world) < n {
		x := rng.Float64()*4 - 2
		y := rng.Float64()*4 - 2
		z := rng.Float64()*4 + 4
		x2, y2, z2 := s.r.Apply(x, y, z)
		x2 += s.t[0]
		y2 += s.t[1]
		z2 += s.t[2]
		if z2 <= 0.1 {
			continue
		}
		s.world = append(s.world, [3]float64{x, y, z})
		s.pts1 = append(s.pts1, Point2{X: 500*x/z + 320, Y: 500*y/z + 240})
		s.pts2 = append(s.pts2, Point2{X: 500*x2/z2 + 320, Y: 500*y2/z2 + 240})
	}
	return s
}

func TestEstimateEssentialAndRecoverPose(t *testing.T) {
	scene := makeScene(60, 3)
	rng := rand.New(rand.NewSource(42))

	res, err := EstimateEssential(scene.pts1, scene.pts2, scene.k, DefaultRANSACParams(), rng)
	if err != nil {
		t.Fatalf("estimation failed: %v", err)
	}
	if res.NumInliers < 50 {
		t.Fatalf("expected most correspondences as inliers, got %d/60", res.NumInliers)
	}

	pose, err := RecoverPose(res.E, scene.pts1, scene.pts2, scene.k, res.Inliers)
	if err != nil {
		t.Fatalf("pose recovery failed: %v", err)
	}
	if pose.Inliers < 50 {
		t.Fatalf("expected cheirality to keep most inliers, got %d", pose.Inliers)
	}

	for i := range pose.R {
		if math.Abs(pose.R[i]-scene.r[i]) > 1e-4 {
			t.Fatalf("rotation mismatch:\ngot  %v\nwant %v", pose.R, scene.r)
		}
	}

	// Translation is direction-only; compare via the dot product.
	dot := pose.T[0]*scene.t[0] + pose.T[1]*scene.t[1] + pose.T[2]*scene.t[2]
	if dot < 0.9999 {
		t.Fatalf("translation direction mismatch: got %v want %v (dot %f)", pose.T, scene.t, dot)
	}
}

func TestEstimateEssentialRejectsOutliers(t *testing.T) {
	scene := makeScene(60, 5)

	// Corrupt ten correspondences with gross pixel errors.
	corrupted := make([]Point2, len(scene.pts2))
	copy(corrupted, scene.pts2)
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 10; i++ {
		corrupted[i].X += 40 + rng.Float64()*80
		corrupted[i].Y -= 40 + rng.Float64()*80
	}

	res, err := EstimateEssential(scene.pts1, corrupted, scene.k, DefaultRANSACParams(), rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("estimation failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if res.Inliers[i] {
			t.Errorf("corrupted correspondence %d marked inlier", i)
		}
	}
	if res.NumInliers < 45 {
		t.Errorf("expected the clean majority as inliers, got %d", res.NumInliers)
	}
}

func TestEstimateEssentialTooFewPoints(t *testing.T) {
	scene := makeScene(7, 1)
	_, err := EstimateEssential(scene.pts1, scene.pts2, scene.k, DefaultRANSACParams(), rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("expected error for fewer than eight correspondences")
	}
}

func TestTriangulatePointsRoundTrip(t *testing.T) {
	scene := makeScene(25, 8)

	p1 := ProjectionMatrix(scene.k, IdentityExtrinsics())
	p2 := ProjectionMatrix(scene.k, Extrinsics(scene.r, scene.t))

	homog := TriangulatePoints(p1, p2, scene.pts1, scene.pts2)
	if len(homog) != len(scene.world) {
		t.Fatalf("expected %d points, got %d", len(scene.world), len(homog))
	}
	for i, h := range homog {
		if h[3] == 0 {
			t.Fatalf("point %d at infinity", i)
		}
		x, y, z := h[0]/h[3], h[1]/h[3], h[2]/h[3]
		w := scene.world[i]
		if math.Abs(x-w[0]) > 1e-6 || math.Abs(y-w[1]) > 1e-6 || math.Abs(z-w[2]) > 1e-6 {
			t.Fatalf("point %d mismatch: got (%f,%f,%f) want %v", i, x, y, z, w)
		}
	}
}

func TestSampsonErrorZeroForExactCorrespondence(t *testing.T) {
	scene := makeScene(20, 12)
	rng := rand.New(rand.NewSource(4))
	res, err := EstimateEssential(scene.pts1, scene.pts2, scene.k, DefaultRANSACParams(), rng)
	if err != nil {
		t.Fatalf("estimation failed: %v", err)
	}
	n1 := normalizePoints(scene.pts1, scene.k)
	n2 := normalizePoints(scene.pts2, scene.k)
	for i := range n1 {
		if e := sampsonError(res.E, n1[i], n2[i]); e > 1e-6 {
			t.Fatalf("Sampson error too high for exact correspondence %d: %g", i, e)
		}
	}
}
