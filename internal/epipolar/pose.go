package epipolar

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/amtellezfernandez/lidar-pc/internal/geom"
)

// RelativePose is a recovered camera-to-camera motion: rotation plus a
// unit-length, scale-ambiguous translation direction, together with the
// number of inlier correspondences that passed the cheirality test.
type RelativePose struct {
	R       geom.Rotation
	T       [3]float64
	Inliers int
}

// RecoverPose decomposes an essential matrix into the four candidate
// (R, t) hypotheses and selects the one placing the most triangulated
// inlier correspondences in front of both cameras. Points behind either
// camera under the winning hypothesis do not count as inliers.
func RecoverPose(e *mat.Dense, pts1, pts2 []Point2, k *mat.Dense, mask []bool) (RelativePose, error) {
	n1 := normalizePoints(pts1, k)
	n2 := normalizePoints(pts2, k)

	var svd mat.SVD
	if ok := svd.Factorize(e, mat.SVDFull); !ok {
		return RelativePose{}, ErrDegenerate
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// U and V must be proper rotations for the candidate poses to be.
	if mat.Det(&u) < 0 {
		u.Scale(-1, &u)
	}
	if mat.Det(&v) < 0 {
		v.Scale(-1, &v)
	}

	w := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})

	var r1m, r2m, tmp mat.Dense
	tmp.Mul(&u, w)
	r1m.Mul(&tmp, v.T())
	tmp.Mul(&u, w.T())
	r2m.Mul(&tmp, v.T())

	r1 := denseToRotation(&r1m)
	r2 := denseToRotation(&r2m)
	t := [3]float64{u.At(0, 2), u.At(1, 2), u.At(2, 2)}
	neg := [3]float64{-t[0], -t[1], -t[2]}

	candidates := []RelativePose{
		{R: r1, T: t},
		{R: r1, T: neg},
		{R: r2, T: t},
		{R: r2, T: neg},
	}

	best := -1
	bestCount := -1
	for i, c := range candidates {
		count := cheiralityCount(c.R, c.T, n1, n2, mask)
		if count > bestCount {
			bestCount = count
			best = i
		}
	}
	if best < 0 {
		return RelativePose{}, ErrDegenerate
	}

	chosen := candidates[best]
	chosen.Inliers = bestCount
	return chosen, nil
}

// cheiralityCount triangulates the masked correspondences under the
// hypothesis (r, t) and counts the points with positive depth in both
// camera frames.
func cheiralityCount(r geom.Rotation, t [3]float64, n1, n2 []Point2, mask []bool) int {
	p1 := identityProjection()
	p2 := poseProjection(r, t)

	count := 0
	for i := range n1 {
		if mask != nil && !mask[i] {
			continue
		}
		h := triangulateDLT(p1, p2, n1[i], n2[i])
		if h[3] == 0 {
			continue
		}
		x := h[0] / h[3]
		y := h[1] / h[3]
		z := h[2] / h[3]
		if math.IsNaN(z) || math.IsInf(z, 0) || z <= 0 {
			continue
		}
		// Depth in the second camera frame.
		_, _, z2 := r.Apply(x, y, z)
		if z2+t[2] > 0 {
			count++
		}
	}
	return count
}

// identityProjection returns the 3x4 projection [I|0].
func identityProjection() *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	})
}

// poseProjection returns the 3x4 projection [R|t].
func poseProjection(r geom.Rotation, t [3]float64) *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		r[0], r[1], r[2], t[0],
		r[3], r[4], r[5], t[1],
		r[6], r[7], r[8], t[2],
	})
}

// denseToRotation copies a 3x3 dense matrix into the flat rotation type.
func denseToRotation(m *mat.Dense) geom.Rotation {
	var r geom.Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[3*i+j] = m.At(i, j)
		}
	}
	return r
}
