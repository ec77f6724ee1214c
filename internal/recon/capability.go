package recon

import "errors"

// ErrUnavailable marks a capability that is not present in this build.
// Callers treat it like any other capability failure: skip the step and
// keep going.
var ErrUnavailable = errors.New("recon: capability unavailable")

// CloudFilter post-processes a cloud, typically removing outliers. A
// failed filter leaves the input cloud in use.
type CloudFilter interface {
	Filter(c Cloud) (Cloud, error)
}

// CloudWriter persists a cloud in some enhanced on-disk format. When it
// fails the plain ASCII writer takes over.
type CloudWriter interface {
	WriteCloud(c Cloud, path string) error
}

// MeshHuller computes a surface over the cloud and writes it as a mesh
// artifact. When it fails the mesh is simply omitted.
type MeshHuller interface {
	WriteMesh(c Cloud, path string) error
}

// UnavailableFilter is the CloudFilter of a build without point-cloud
// post-processing.
type UnavailableFilter struct{}

func (UnavailableFilter) Filter(c Cloud) (Cloud, error) { return c, ErrUnavailable }

// UnavailableWriter is the CloudWriter of a build without a native
// cloud writer.
type UnavailableWriter struct{}

func (UnavailableWriter) WriteCloud(Cloud, string) error { return ErrUnavailable }

// UnavailableHuller is the MeshHuller of a build without mesh export.
type UnavailableHuller struct{}

func (UnavailableHuller) WriteMesh(Cloud, string) error { return ErrUnavailable }

// Capabilities bundles the optional post-processing hooks. They are
// selected once at construction; the reconstruction body never probes
// for features inline.
type Capabilities struct {
	Filter CloudFilter
	Writer CloudWriter
	Huller MeshHuller
}

// DefaultCapabilities enables the built-in statistical filter and convex
// hull mesher. No native cloud writer ships with this build, so the
// ASCII writer always handles the point cloud itself.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Filter: StatisticalFilter{Neighbors: 20, StdRatio: 2.0},
		Writer: UnavailableWriter{},
		Huller: ConvexHuller{},
	}
}
