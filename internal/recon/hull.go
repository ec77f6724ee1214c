package recon

import (
	"errors"
	"math"
)

// ConvexHuller meshes the cloud as its 3D convex hull and writes the
// result as an ASCII PLY with faces.
type ConvexHuller struct{}

var errFlatCloud = errors.New("recon: points are coplanar, no hull volume")

// WriteMesh computes the hull over the cloud's points and persists it.
// Degenerate point sets (all coplanar or collinear) fail, which the
// caller treats as "no mesh".
func (ConvexHuller) WriteMesh(c Cloud, path string) error {
	faces, err := convexHull(c.Points)
	if err != nil {
		return err
	}
	return writeMeshPLY(path, c.Points, faces)
}

const hullEpsilon = 1e-9

// convexHull runs the incremental algorithm: seed a tetrahedron from
// four points in general position, then fold each remaining point in by
// replacing the faces it can see with a fan over the horizon edges.
// Faces index into points and wind counter-clockwise seen from outside.
func convexHull(points [][3]float64) ([][3]int, error) {
	if len(points) < 4 {
		return nil, errFlatCloud
	}
	seed, err := seedTetrahedron(points)
	if err != nil {
		return nil, err
	}

	// Interior reference point keeps face orientation consistent.
	var centroid [3]float64
	for _, i := range seed {
		for a := 0; a < 3; a++ {
			centroid[a] += points[i][a] / 4
		}
	}

	faces := [][3]int{
		{seed[0], seed[1], seed[2]},
		{seed[0], seed[1], seed[3]},
		{seed[0], seed[2], seed[3]},
		{seed[1], seed[2], seed[3]},
	}
	for f := range faces {
		faces[f] = orientOutward(points, faces[f], centroid)
	}

	used := map[int]bool{seed[0]: true, seed[1]: true, seed[2]: true, seed[3]: true}
	for i := range points {
		if used[i] {
			continue
		}
		faces = addPoint(points, faces, i)
	}
	return faces, nil
}

// addPoint extends the hull with point i. Visible faces are removed and
// the resulting horizon loop is stitched to the new point; a point
// inside the hull leaves it unchanged.
func addPoint(points [][3]float64, faces [][3]int, i int) [][3]int {
	var kept [][3]int
	horizon := map[[2]int]int{}
	for _, f := range faces {
		if signedDistance(points, f, points[i]) > hullEpsilon {
			// Visible: its edges are horizon candidates. An edge shared
			// by two visible faces cancels out.
			for e := 0; e < 3; e++ {
				a, b := f[e], f[(e+1)%3]
				if _, dup := horizon[[2]int{b, a}]; dup {
					delete(horizon, [2]int{b, a})
				} else {
					horizon[[2]int{a, b}]++
				}
			}
		} else {
			kept = append(kept, f)
		}
	}
	if len(horizon) == 0 {
		return faces
	}
	for edge := range horizon {
		// The horizon edge keeps its winding, so the new face faces
		// outward automatically.
		kept = append(kept, [3]int{edge[0], edge[1], i})
	}
	return kept
}

// seedTetrahedron finds four points in general position: two distinct,
// a third off their line, a fourth off their plane.
func seedTetrahedron(points [][3]float64) ([4]int, error) {
	var seed [4]int
	seed[0] = 0

	found := false
	for i := 1; i < len(points); i++ {
		if distance(points[0], points[i]) > hullEpsilon {
			seed[1] = i
			found = true
			break
		}
	}
	if !found {
		return seed, errFlatCloud
	}

	found = false
	for i := seed[1] + 1; i < len(points); i++ {
		n := cross(sub(points[seed[1]], points[seed[0]]), sub(points[i], points[seed[0]]))
		if norm(n) > hullEpsilon {
			seed[2] = i
			found = true
			break
		}
	}
	if !found {
		return seed, errFlatCloud
	}

	n := faceNormal(points, [3]int{seed[0], seed[1], seed[2]})
	for i := 0; i < len(points); i++ {
		if math.Abs(dot(n, sub(points[i], points[seed[0]]))) > hullEpsilon {
			seed[3] = i
			return seed, nil
		}
	}
	return seed, errFlatCloud
}

// orientOutward flips the face if its normal points toward the interior
// reference point.
func orientOutward(points [][3]float64, f [3]int, interior [3]float64) [3]int {
	if signedDistance(points, f, interior) > 0 {
		return [3]int{f[0], f[2], f[1]}
	}
	return f
}

// signedDistance is positive when p lies on the outside of face f.
func signedDistance(points [][3]float64, f [3]int, p [3]float64) float64 {
	return dot(faceNormal(points, f), sub(p, points[f[0]]))
}

func faceNormal(points [][3]float64, f [3]int) [3]float64 {
	n := cross(sub(points[f[1]], points[f[0]]), sub(points[f[2]], points[f[0]]))
	l := norm(n)
	if l < hullEpsilon {
		return n
	}
	return [3]float64{n[0] / l, n[1] / l, n[2] / l}
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}
