// Package epipolar implements calibrated two-view geometry: robust
// essential-matrix estimation, pose recovery with cheirality
// disambiguation, and linear triangulation. All heavy linear algebra runs
// on gonum dense matrices and SVD.
package epipolar

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Point2 is a 2D image point in pixel coordinates.
type Point2 struct {
	X float64
	Y float64
}

// ErrDegenerate is returned when the correspondences cannot support an
// essential-matrix estimate (too few points or a rank-deficient system).
var ErrDegenerate = errors.New("epipolar: degenerate correspondence set")

// minCorrespondences is the sample size of the linear eight-point solver.
const minCorrespondences = 8

// RANSACParams tunes the robust estimation loop.
type RANSACParams struct {
	MaxIterations  int     // fixed iteration budget
	PixelThreshold float64 // Sampson error slack, in pixels
}

// DefaultRANSACParams matches the tracker's operating point: a one-pixel
// inlier band, which is roughly the detector's localization accuracy.
func DefaultRANSACParams() RANSACParams {
	return RANSACParams{
		MaxIterations:  500,
		PixelThreshold: 1.0,
	}
}

// EssentialResult is the outcome of robust essential-matrix estimation.
type EssentialResult struct {
	E          *mat.Dense // 3x3 essential matrix (normalized coordinates)
	Inliers    []bool     // per-correspondence inlier mask
	NumInliers int
}

// EstimateEssential robustly estimates the essential matrix relating two
// calibrated views from pixel correspondences. The RANSAC loop samples
// eight correspondences per iteration, scores candidates by Sampson error
// in normalized coordinates, and refits on the consensus set. The rng is
// injected so callers control determinism.
func EstimateEssential(pts1, pts2 []Point2, k *mat.Dense, params RANSACParams, rng *rand.Rand) (*EssentialResult, error) {
	if len(pts1) != len(pts2) || len(pts1) < minCorrespondences {
		return nil, ErrDegenerate
	}

	n1 := normalizePoints(pts1, k)
	n2 := normalizePoints(pts2, k)

	// The pixel threshold maps into normalized coordinates through the
	// mean focal length.
	focal := (k.At(0, 0) + k.At(1, 1)) / 2.0
	if focal <= 0 {
		return nil, ErrDegenerate
	}
	threshold := params.PixelThreshold / focal

	n := len(n1)
	var bestMask []bool
	bestCount := 0
	var bestE *mat.Dense

	sample := make([]int, minCorrespondences)
	for iter := 0; iter < params.MaxIterations; iter++ {
		sampleDistinct(rng, n, sample)
		e := eightPoint(n1, n2, sample)
		if e == nil {
			continue
		}

		mask := make([]bool, n)
		count := 0
		for i := 0; i < n; i++ {
			if sampsonError(e, n1[i], n2[i]) < threshold {
				mask[i] = true
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			bestMask = mask
			bestE = e
		}
	}

	if bestE == nil || bestCount < minCorrespondences {
		return nil, ErrDegenerate
	}

	// Refit on the consensus set and rescore. The refit can only use the
	// inliers of the best sample model, so the mask may shrink or grow
	// slightly; keep whichever model explains more correspondences.
	if refined := eightPointMask(n1, n2, bestMask); refined != nil {
		mask := make([]bool, n)
		count := 0
		for i := 0; i < n; i++ {
			if sampsonError(refined, n1[i], n2[i]) < threshold {
				mask[i] = true
				count++
			}
		}
		if count >= bestCount {
			bestE, bestMask, bestCount = refined, mask, count
		}
	}

	return &EssentialResult{E: bestE, Inliers: bestMask, NumInliers: bestCount}, nil
}

// normalizePoints maps pixel coordinates to normalized camera coordinates
// using the pinhole intrinsics.
func normalizePoints(pts []Point2, k *mat.Dense) []Point2 {
	fx, fy := k.At(0, 0), k.At(1, 1)
	cx, cy := k.At(0, 2), k.At(1, 2)
	out := make([]Point2, len(pts))
	for i, p := range pts {
		out[i] = Point2{X: (p.X - cx) / fx, Y: (p.Y - cy) / fy}
	}
	return out
}

// sampleDistinct fills sample with distinct indices in [0, n).
func sampleDistinct(rng *rand.Rand, n int, sample []int) {
	for i := range sample {
		for {
			v := rng.Intn(n)
			dup := false
			for j := 0; j < i; j++ {
				if sample[j] == v {
					dup = true
					break
				}
			}
			if !dup {
				sample[i] = v
				break
			}
		}
	}
}

// eightPoint solves the linear eight-point system for the sampled
// correspondences and projects the result onto the essential manifold.
// Returns nil when the system is rank deficient.
func eightPoint(n1, n2 []Point2, sample []int) *mat.Dense {
	rows := make([]float64, 0, len(sample)*9)
	for _, idx := range sample {
		p, q := n1[idx], n2[idx]
		rows = append(rows,
			q.X*p.X, q.X*p.Y, q.X,
			q.Y*p.X, q.Y*p.Y, q.Y,
			p.X, p.Y, 1,
		)
	}
	return solveEpipolarSystem(mat.NewDense(len(sample), 9, rows))
}

// eightPointMask solves the linear system over every masked
// correspondence.
func eightPointMask(n1, n2 []Point2, mask []bool) *mat.Dense {
	rows := make([]float64, 0, 9*len(n1))
	count := 0
	for i := range n1 {
		if !mask[i] {
			continue
		}
		p, q := n1[i], n2[i]
		rows = append(rows,
			q.X*p.X, q.X*p.Y, q.X,
			q.Y*p.X, q.Y*p.Y, q.Y,
			p.X, p.Y, 1,
		)
		count++
	}
	if count < minCorrespondences {
		return nil
	}
	return solveEpipolarSystem(mat.NewDense(count, 9, rows))
}

// solveEpipolarSystem extracts the null vector of A as a 3x3 matrix and
// enforces the essential-matrix singular value structure (s, s, 0).
func solveEpipolarSystem(a *mat.Dense) *mat.Dense {
	// Full factorization: with the minimal eight rows the null vector is
	// the ninth right singular vector, which a thin SVD does not produce.
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return nil
	}
	var v mat.Dense
	svd.VTo(&v)
	if v.RawMatrix().Cols < 9 {
		return nil
	}

	e := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			e.Set(i, j, v.At(3*i+j, 8))
		}
	}

	// Project onto the essential manifold: equal nonzero singular values,
	// third exactly zero.
	var esvd mat.SVD
	if ok := esvd.Factorize(e, mat.SVDFull); !ok {
		return nil
	}
	vals := esvd.Values(nil)
	s := (vals[0] + vals[1]) / 2.0
	if s <= 0 || math.IsNaN(s) {
		return nil
	}
	var u, ev mat.Dense
	esvd.UTo(&u)
	esvd.VTo(&ev)
	sigma := mat.NewDiagDense(3, []float64{s, s, 0})

	var tmp, out mat.Dense
	tmp.Mul(&u, sigma)
	out.Mul(&tmp, ev.T())
	return mat.DenseCopyOf(&out)
}

// sampsonError computes the first-order geometric error of the
// correspondence (p -> q) under the epipolar constraint q^T E p = 0.
func sampsonError(e *mat.Dense, p, q Point2) float64 {
	// E p and E^T q, with p and q in homogeneous form.
	ep0 := e.At(0, 0)*p.X + e.At(0, 1)*p.Y + e.At(0, 2)
	ep1 := e.At(1, 0)*p.X + e.At(1, 1)*p.Y + e.At(1, 2)
	ep2 := e.At(2, 0)*p.X + e.At(2, 1)*p.Y + e.At(2, 2)
	etq0 := e.At(0, 0)*q.X + e.At(1, 0)*q.Y + e.At(2, 0)
	etq1 := e.At(0, 1)*q.X + e.At(1, 1)*q.Y + e.At(2, 1)

	qep := q.X*ep0 + q.Y*ep1 + ep2
	denom := ep0*ep0 + ep1*ep1 + etq0*etq0 + etq1*etq1
	if denom == 0 {
		return math.Inf(1)
	}
	return math.Abs(qep) / math.Sqrt(denom)
}
