// Package report renders session artifacts into human-readable outputs:
// a top-down trajectory plot as PNG and an HTML overview page with the
// trajectory path and per-state tracking counts.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/amtellezfernandez/lidar-pc/internal/monitoring"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
)

// Summary reports the rendered artifact paths.
type Summary struct {
	TrajectoryPNG string
	OverviewHTML  string
}

// Run renders the session's report artifacts into its exports directory.
// A session without a trajectory is fatal: there is nothing to report.
func Run(dir session.Dir) (Summary, error) {
	traj, err := session.LoadTrajectory(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("report requires a tracked trajectory: %w", err)
	}
	if len(traj.Poses) == 0 {
		return Summary{}, fmt.Errorf("session %s has an empty trajectory", dir.Root)
	}

	if err := os.MkdirAll(dir.ExportsDir(), 0o755); err != nil {
		return Summary{}, fmt.Errorf("create exports dir: %w", err)
	}

	pngPath := filepath.Join(dir.ExportsDir(), "trajectory.png")
	if err := renderTrajectoryPNG(pngPath, traj); err != nil {
		return Summary{}, err
	}
	htmlPath := filepath.Join(dir.ExportsDir(), "overview.html")
	if err := renderOverviewHTML(htmlPath, dir, traj); err != nil {
		return Summary{}, err
	}

	monitoring.Logf("report: wrote %s and %s", pngPath, htmlPath)
	return Summary{TrajectoryPNG: pngPath, OverviewHTML: htmlPath}, nil
}

// renderTrajectoryPNG plots the camera path seen from above (x against
// z, the forward axis).
func renderTrajectoryPNG(path string, traj session.TrajectoryFile) error {
	p := plot.New()
	p.Title.Text = "Camera trajectory (top-down)"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "z (m)"

	pts := make(plotter.XYs, len(traj.Poses))
	for i, pose := range traj.Poses {
		pts[i] = plotter.XY{X: pose.TranslationM[0], Y: pose.TranslationM[2]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build trajectory line: %w", err)
	}
	line.Width = vg.Points(1.5)
	p.Add(line, plotter.NewGrid())

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("build trajectory markers: %w", err)
	}
	p.Add(scatter)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}
	return nil
}

// renderOverviewHTML writes a single page with the trajectory path and a
// bar chart of tracking-state counts.
func renderOverviewHTML(path string, dir session.Dir, traj session.TrajectoryFile) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Camera trajectory",
			Subtitle: fmt.Sprintf("%d poses, good ratio %.2f", traj.Metrics.PoseCount, traj.Metrics.GoodRatio),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "z (m)"}),
	)
	var xs []string
	var ys []opts.LineData
	for _, pose := range traj.Poses {
		xs = append(xs, fmt.Sprintf("%.3f", pose.TranslationM[0]))
		ys = append(ys, opts.LineData{Value: pose.TranslationM[2]})
	}
	line.SetXAxis(xs).AddSeries("path", ys)

	counts := map[session.TrackingState]int{}
	for _, pose := range traj.Poses {
		counts[pose.TrackingState]++
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Tracking states"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	states := []session.TrackingState{session.StateGood, session.StateLimited, session.StateLost}
	var labels []string
	var values []opts.BarData
	for _, st := range states {
		labels = append(labels, string(st))
		values = append(values, opts.BarData{Value: counts[st]})
	}
	bar.SetXAxis(labels).AddSeries("poses", values,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.SetPageTitle("Session overview: " + filepath.Base(dir.Root))
	page.AddCharts(line, bar)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render overview: %w", err)
	}
	return nil
}
