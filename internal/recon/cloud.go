// Package recon triangulates a colored world-frame point cloud from the
// keyframes and trajectory of a tracked session. Consecutive keyframe
// pairs are processed independently on a worker pool; optional
// post-processing (outlier filtering, convex-hull meshing, native cloud
// writers) is modeled as capabilities that degrade silently when absent.
package recon

// Cloud is a colored point cloud. Points and Colors are parallel slices
// and always share a length.
type Cloud struct {
	Points [][3]float64
	Colors [][3]uint8
}

// Len returns the number of points.
func (c Cloud) Len() int { return len(c.Points) }

// Append adds one colored point.
func (c *Cloud) Append(p [3]float64, col [3]uint8) {
	c.Points = append(c.Points, p)
	c.Colors = append(c.Colors, col)
}

// Merge appends every point of other, preserving order.
func (c *Cloud) Merge(other Cloud) {
	c.Points = append(c.Points, other.Points...)
	c.Colors = append(c.Colors, other.Colors...)
}
