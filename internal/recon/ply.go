package recon

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// WriteASCIIPLY writes the cloud in the plain ASCII PLY layout the rest
// of the tooling parses. The header and per-point line format are fixed;
// downstream consumers match them byte for byte.
func WriteASCIIPLY(path string, c Cloud) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "ply")
	fmt.Fprintln(w, "format ascii 1.0")
	fmt.Fprintf(w, "element vertex %d\n", c.Len())
	fmt.Fprintln(w, "property float x")
	fmt.Fprintln(w, "property float y")
	fmt.Fprintln(w, "property float z")
	fmt.Fprintln(w, "property uchar red")
	fmt.Fprintln(w, "property uchar green")
	fmt.Fprintln(w, "property uchar blue")
	fmt.Fprintln(w, "end_header")
	for i, p := range c.Points {
		col := c.Colors[i]
		fmt.Fprintf(w, "%.6f %.6f %.6f %d %d %d\n", p[0], p[1], p[2], col[0], col[1], col[2])
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// writeMeshPLY persists a triangle mesh over the given vertices.
func writeMeshPLY(path string, points [][3]float64, faces [][3]int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "ply")
	fmt.Fprintln(w, "format ascii 1.0")
	fmt.Fprintf(w, "element vertex %d\n", len(points))
	fmt.Fprintln(w, "property float x")
	fmt.Fprintln(w, "property float y")
	fmt.Fprintln(w, "property float z")
	fmt.Fprintf(w, "element face %d\n", len(faces))
	fmt.Fprintln(w, "property list uchar int vertex_indices")
	fmt.Fprintln(w, "end_header")
	for _, p := range points {
		fmt.Fprintf(w, "%.6f %.6f %.6f\n", p[0], p[1], p[2])
	}
	for _, face := range faces {
		fmt.Fprintf(w, "3 %d %d %d\n", face[0], face[1], face[2])
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
