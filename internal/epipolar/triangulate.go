package epipolar

import "gonum.org/v1/gonum/mat"

// CameraMatrix builds the 3x3 pinhole intrinsics matrix K from its
// parameters.
func CameraMatrix(fx, fy, cx, cy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})
}

// ProjectionMatrix returns K*[R|t], the 3x4 pixel-space projection of a
// camera at rotation r and translation t.
func ProjectionMatrix(k *mat.Dense, rt *mat.Dense) *mat.Dense {
	out := mat.NewDense(3, 4, nil)
	out.Mul(k, rt)
	return out
}

// IdentityExtrinsics returns the 3x4 matrix [I|0].
func IdentityExtrinsics() *mat.Dense {
	return identityProjection()
}

// Extrinsics returns the 3x4 matrix [R|t] for the given rotation (flat
// row-major) and translation.
func Extrinsics(r [9]float64, t [3]float64) *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		r[0], r[1], r[2], t[0],
		r[3], r[4], r[5], t[1],
		r[6], r[7], r[8], t[2],
	})
}

// TriangulatePoints recovers homogeneous 3D points from correspondences
// observed under two projection matrices, one DLT solve per pair. The
// caller converts to Euclidean coordinates and applies its own validity
// filtering; non-finite or at-infinity results are passed through as-is.
func TriangulatePoints(p1, p2 *mat.Dense, pts1, pts2 []Point2) [][4]float64 {
	out := make([][4]float64, len(pts1))
	for i := range pts1 {
		out[i] = triangulateDLT(p1, p2, pts1[i], pts2[i])
	}
	return out
}

// triangulateDLT solves the homogeneous linear system for one point: each
// view contributes two rows of x*P[2]-P[0] / y*P[2]-P[1], and the point is
// the null vector of the stacked 4x4 system.
func triangulateDLT(p1, p2 *mat.Dense, a, b Point2) [4]float64 {
	rows := make([]float64, 0, 16)
	for j := 0; j < 4; j++ {
		rows = append(rows, a.X*p1.At(2, j)-p1.At(0, j))
	}
	for j := 0; j < 4; j++ {
		rows = append(rows, a.Y*p1.At(2, j)-p1.At(1, j))
	}
	for j := 0; j < 4; j++ {
		rows = append(rows, b.X*p2.At(2, j)-p2.At(0, j))
	}
	for j := 0; j < 4; j++ {
		rows = append(rows, b.Y*p2.At(2, j)-p2.At(1, j))
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(4, 4, rows), mat.SVDFull); !ok {
		return [4]float64{}
	}
	var v mat.Dense
	svd.VTo(&v)
	return [4]float64{v.At(0, 3), v.At(1, 3), v.At(2, 3), v.At(3, 3)}
}
