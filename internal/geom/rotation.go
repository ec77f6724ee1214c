// Package geom provides the small amount of 3D rotation math shared by the
// pose tracker and the reconstructor: row-major rotation matrices, unit
// quaternions and the numerically careful conversions between them.
package geom

import "math"

// Rotation is a 3x3 rotation matrix stored row-major:
// m00,m01,m02, m10,m11,m12, m20,m21,m22.
type Rotation [9]float64

// Quaternion is a unit quaternion in x,y,z,w component order, matching the
// on-disk quaternion_xyzw convention of the trajectory schema.
type Quaternion [4]float64

// IdentityRotation returns the identity rotation matrix.
func IdentityRotation() Rotation {
	return Rotation{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// IdentityQuaternion returns the identity quaternion (0,0,0,1).
func IdentityQuaternion() Quaternion {
	return Quaternion{0, 0, 0, 1}
}

// Mul returns r*s (apply s first, then r).
func (r Rotation) Mul(s Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r[3*i]*s[j] + r[3*i+1]*s[3+j] + r[3*i+2]*s[6+j]
		}
	}
	return out
}

// Transpose returns the transposed matrix. For a proper rotation this is
// also the inverse.
func (r Rotation) Transpose() Rotation {
	return Rotation{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// Apply rotates the vector (x,y,z).
func (r Rotation) Apply(x, y, z float64) (float64, float64, float64) {
	return r[0]*x + r[1]*y + r[2]*z,
		r[3]*x + r[4]*y + r[5]*z,
		r[6]*x + r[7]*y + r[8]*z
}

// Trace returns the sum of the diagonal elements.
func (r Rotation) Trace() float64 {
	return r[0] + r[4] + r[8]
}

// RotationToQuaternion extracts a unit quaternion from a rotation matrix
// using Shepperd's method: the branch is selected by the trace, or by the
// dominant diagonal element when the trace is not positive, so the square
// root argument stays well away from zero. The result is renormalized; a
// degenerate (zero or non-finite) norm yields the identity quaternion.
func RotationToQuaternion(m Rotation) Quaternion {
	var qx, qy, qz, qw float64
	trace := m.Trace()
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1.0) * 2.0
		qw = 0.25 * s
		qx = (m[7] - m[5]) / s
		qy = (m[2] - m[6]) / s
		qz = (m[3] - m[1]) / s
	case m[0] > m[4] && m[0] > m[8]:
		s := math.Sqrt(1.0+m[0]-m[4]-m[8]) * 2.0
		qw = (m[7] - m[5]) / s
		qx = 0.25 * s
		qy = (m[1] + m[3]) / s
		qz = (m[2] + m[6]) / s
	case m[4] > m[8]:
		s := math.Sqrt(1.0+m[4]-m[0]-m[8]) * 2.0
		qw = (m[2] - m[6]) / s
		qx = (m[1] + m[3]) / s
		qy = 0.25 * s
		qz = (m[5] + m[7]) / s
	default:
		s := math.Sqrt(1.0+m[8]-m[0]-m[4]) * 2.0
		qw = (m[3] - m[1]) / s
		qx = (m[2] + m[6]) / s
		qy = (m[5] + m[7]) / s
		qz = 0.25 * s
	}

	norm := math.Sqrt(qx*qx + qy*qy + qz*qz + qw*qw)
	if !(norm > 0) {
		return IdentityQuaternion()
	}
	return Quaternion{qx / norm, qy / norm, qz / norm, qw / norm}
}

// QuaternionToRotation converts a quaternion to a rotation matrix using the
// standard formula scaled by 2/|q|^2, so non-unit quaternions are handled
// without a separate normalization pass. A near-zero squared norm
// (< 1e-12) yields the identity matrix.
func QuaternionToRotation(q Quaternion) Rotation {
	x, y, z, w := q[0], q[1], q[2], q[3]
	n := x*x + y*y + z*z + w*w
	if n < 1e-12 {
		return IdentityRotation()
	}
	s := 2.0 / n
	xx, xy, xz := x*x*s, x*y*s, x*z*s
	yy, yz, zz := y*y*s, y*z*s, z*z*s
	wx, wy, wz := w*x*s, w*y*s, w*z*s
	return Rotation{
		1.0 - (yy + zz), xy - wz, xz + wy,
		xy + wz, 1.0 - (xx + zz), yz - wx,
		xz - wy, yz + wx, 1.0 - (xx + yy),
	}
}
