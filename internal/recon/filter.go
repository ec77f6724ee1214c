package recon

import (
	"math"
	"sort"
)

// StatisticalFilter removes sparse outliers: points whose mean distance
// to their k nearest neighbors exceeds the cloud-wide mean by more than
// StdRatio standard deviations.
type StatisticalFilter struct {
	Neighbors int
	StdRatio  float64
}

// Filter returns the cloud with outliers removed. Clouds with at most
// Neighbors points pass through untouched since every point would be its
// own neighborhood.
func (f StatisticalFilter) Filter(c Cloud) (Cloud, error) {
	n := c.Len()
	k := f.Neighbors
	if k <= 0 || n <= k {
		return c, nil
	}

	grid := newVoxelGrid(c.Points, k)
	meanDist := make([]float64, n)
	for i := range c.Points {
		meanDist[i] = grid.meanNearestDistance(c.Points, i, k)
	}

	mean := 0.0
	for _, d := range meanDist {
		mean += d
	}
	mean /= float64(n)
	variance := 0.0
	for _, d := range meanDist {
		variance += (d - mean) * (d - mean)
	}
	threshold := mean + f.StdRatio*math.Sqrt(variance/float64(n))

	var out Cloud
	for i := range c.Points {
		if meanDist[i] <= threshold {
			out.Append(c.Points[i], c.Colors[i])
		}
	}
	return out, nil
}

// voxelGrid hashes points into cubic cells so neighbor queries scan only
// nearby cells instead of the whole cloud.
type voxelGrid struct {
	cells map[[3]int][]int
	size  float64
}

func newVoxelGrid(points [][3]float64, targetPerCell int) *voxelGrid {
	lo := points[0]
	hi := points[0]
	for _, p := range points[1:] {
		for a := 0; a < 3; a++ {
			lo[a] = math.Min(lo[a], p[a])
			hi[a] = math.Max(hi[a], p[a])
		}
	}
	volume := 1.0
	for a := 0; a < 3; a++ {
		volume *= math.Max(hi[a]-lo[a], 1e-6)
	}
	// Size cells so one holds roughly targetPerCell points on average.
	size := math.Cbrt(volume * float64(targetPerCell) / float64(len(points)))

	g := &voxelGrid{cells: make(map[[3]int][]int), size: size}
	for i, p := range points {
		key := g.key(p)
		g.cells[key] = append(g.cells[key], i)
	}
	return g
}

func (g *voxelGrid) key(p [3]float64) [3]int {
	return [3]int{
		int(math.Floor(p[0] / g.size)),
		int(math.Floor(p[1] / g.size)),
		int(math.Floor(p[2] / g.size)),
	}
}

// meanNearestDistance returns the mean distance from point i to its k
// nearest neighbors. Cell shells expand outward until enough candidates
// are found, plus one extra shell so a neighbor just across a cell
// boundary cannot be missed.
func (g *voxelGrid) meanNearestDistance(points [][3]float64, i, k int) float64 {
	center := g.key(points[i])
	var dists []float64
	enoughAt := -1
	for shell := 0; ; shell++ {
		found := false
		for _, j := range g.shellIndices(center, shell) {
			found = true
			if j == i {
				continue
			}
			dists = append(dists, distance(points[i], points[j]))
		}
		if len(dists) >= k && enoughAt < 0 {
			enoughAt = shell
		}
		if enoughAt >= 0 && shell > enoughAt {
			break
		}
		// An empty outer shell past the cloud's extent means nothing
		// more to find.
		if !found && shell > 0 && len(g.cells) > 0 && shell > g.maxShell(center) {
			break
		}
	}
	if len(dists) == 0 {
		return 0
	}
	sort.Float64s(dists)
	if len(dists) > k {
		dists = dists[:k]
	}
	sum := 0.0
	for _, d := range dists {
		sum += d
	}
	return sum / float64(len(dists))
}

// shellIndices returns the point indices of every cell on the surface of
// the cube of the given radius around center.
func (g *voxelGrid) shellIndices(center [3]int, shell int) []int {
	var out []int
	for dx := -shell; dx <= shell; dx++ {
		for dy := -shell; dy <= shell; dy++ {
			for dz := -shell; dz <= shell; dz++ {
				if max(abs(dx), abs(dy), abs(dz)) != shell {
					continue
				}
				key := [3]int{center[0] + dx, center[1] + dy, center[2] + dz}
				out = append(out, g.cells[key]...)
			}
		}
	}
	return out
}

// maxShell is the Chebyshev distance from center to the farthest
// occupied cell, an upper bound on useful shell expansion.
func (g *voxelGrid) maxShell(center [3]int) int {
	m := 0
	for key := range g.cells {
		d := max(abs(key[0]-center[0]), abs(key[1]-center[1]), abs(key[2]-center[2]))
		if d > m {
			m = d
		}
	}
	return m
}

func distance(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
