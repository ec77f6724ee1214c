package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/amtellezfernandez/lidar-pc/internal/capture"
	"github.com/amtellezfernandez/lidar-pc/internal/config"
	"github.com/amtellezfernandez/lidar-pc/internal/export"
	"github.com/amtellezfernandez/lidar-pc/internal/recon"
	"github.com/amtellezfernandez/lidar-pc/internal/report"
	"github.com/amtellezfernandez/lidar-pc/internal/session"
	"github.com/amtellezfernandez/lidar-pc/internal/sessiondb"
	"github.com/amtellezfernandez/lidar-pc/internal/tracking"
)

// indexFile is the session index database name, kept next to the
// session directories it describes.
const indexFile = "sessions.db"

// loadConfig loads the tuning config at path, or the checked-in defaults
// when path is empty and they are present. A missing defaults file just
// means built-in defaults.
func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyTuningConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadTuningConfig(path)
}

// openIndex opens the session index next to the sessions. Index failures
// are warnings, not pipeline failures.
func openIndex(path string) *sessiondb.DB {
	db, err := sessiondb.Open(path)
	if err != nil {
		slog.Warn("session index unavailable", "path", path, "error", err)
		return nil
	}
	return db
}

// sessionID reads the session's id from its metadata, falling back to
// the directory name for sessions produced by older builds.
func sessionID(dir session.Dir) string {
	var meta session.Meta
	if err := session.ReadJSON(dir.MetaPath(), &meta); err == nil && meta.SessionID != "" {
		return meta.SessionID
	}
	return filepath.Base(dir.Root)
}

func cmdCapture(args []string) error {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	source := fs.String("source", "", "directory of input images")
	out := fs.String("out", "sessions", "output root for session directories")
	id := fs.String("session", "", "session id (default: generated)")
	calib := fs.String("calib", "", "camera intrinsics JSON (default: inferred)")
	configPath := fs.String("config", "", "tuning config JSON")
	fs.Parse(args)

	if *source == "" {
		return errors.New("capture: -source is required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	params := capture.Params{
		SourceDir:       *source,
		OutputRoot:      *out,
		SessionID:       *id,
		MaxFrames:       cfg.GetMaxFrames(),
		CalibrationPath: *calib,
		Keyframe:        cfg.KeyframeParams(),
	}
	sum, err := capture.Run(params)
	if err != nil {
		return err
	}

	if db := openIndex(filepath.Join(*out, indexFile)); db != nil {
		defer db.Close()
		if err := db.RecordCapture(sum.SessionID, sum.Dir.Root, session.NowWallMS(), sum.KeyframesKept); err != nil {
			slog.Warn("index update failed", "error", err)
		}
	}
	fmt.Println(sum.Dir.Root)
	return nil
}

func cmdTrack(args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	sessionDir := fs.String("session-dir", "", "session directory")
	configPath := fs.String("config", "", "tuning config JSON")
	fs.Parse(args)

	if *sessionDir == "" {
		return errors.New("track: -session-dir is required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	dir := session.Dir{Root: *sessionDir}
	sum, err := tracking.Run(dir, cfg.TrackingParams())
	if err != nil {
		return err
	}

	if db := openIndex(filepath.Join(filepath.Dir(dir.Root), indexFile)); db != nil {
		defer db.Close()
		if err := db.RecordTracking(sessionID(dir), sum.PoseCount, sum.GoodRatio); err != nil {
			slog.Warn("index update failed", "error", err)
		}
	}
	fmt.Println(sum.TrajectoryPath)
	return nil
}

func cmdReconstruct(args []string) error {
	fs := flag.NewFlagSet("reconstruct", flag.ExitOnError)
	sessionDir := fs.String("session-dir", "", "session directory")
	quality := fs.String("quality", "", "quality profile: high or medium (default: config)")
	configPath := fs.String("config", "", "tuning config JSON")
	fs.Parse(args)

	if *sessionDir == "" {
		return errors.New("reconstruct: -session-dir is required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	params := cfg.ReconParams()
	if *quality != "" {
		params.Quality = *quality
	}

	dir := session.Dir{Root: *sessionDir}
	sum, err := recon.Run(dir, params, recon.DefaultCapabilities())
	if err != nil {
		return err
	}

	if db := openIndex(filepath.Join(filepath.Dir(dir.Root), indexFile)); db != nil {
		defer db.Close()
		if err := db.RecordReconstruction(sessionID(dir), sum.PointCount, sum.MeshGenerated, sum.Quality); err != nil {
			slog.Warn("index update failed", "error", err)
		}
	}
	fmt.Println(sum.PointCloudPath)
	return nil
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sessionDir := fs.String("session-dir", "", "session directory")
	fs.Parse(args)

	if *sessionDir == "" {
		return errors.New("export: -session-dir is required")
	}
	sum, err := export.Run(session.Dir{Root: *sessionDir})
	if err != nil {
		return err
	}
	fmt.Println(sum.ManifestPath)
	return nil
}

func cmdReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	sessionDir := fs.String("session-dir", "", "session directory")
	fs.Parse(args)

	if *sessionDir == "" {
		return errors.New("report: -session-dir is required")
	}
	sum, err := report.Run(session.Dir{Root: *sessionDir})
	if err != nil {
		return err
	}
	fmt.Println(sum.OverviewHTML)
	return nil
}

func cmdPipeline(args []string) error {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	source := fs.String("source", "", "directory of input images")
	out := fs.String("out", "sessions", "output root for session directories")
	id := fs.String("session", "", "session id (default: generated)")
	calib := fs.String("calib", "", "camera intrinsics JSON (default: inferred)")
	quality := fs.String("quality", "", "quality profile: high or medium (default: config)")
	configPath := fs.String("config", "", "tuning config JSON")
	fs.Parse(args)

	if *source == "" {
		return errors.New("pipeline: -source is required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	capSum, err := capture.Run(capture.Params{
		SourceDir:       *source,
		OutputRoot:      *out,
		SessionID:       *id,
		MaxFrames:       cfg.GetMaxFrames(),
		CalibrationPath: *calib,
		Keyframe:        cfg.KeyframeParams(),
	})
	if err != nil {
		return err
	}
	dir := capSum.Dir

	db := openIndex(filepath.Join(*out, indexFile))
	if db != nil {
		defer db.Close()
		if err := db.RecordCapture(capSum.SessionID, dir.Root, session.NowWallMS(), capSum.KeyframesKept); err != nil {
			slog.Warn("index update failed", "error", err)
		}
	}

	trackSum, err := tracking.Run(dir, cfg.TrackingParams())
	if err != nil {
		return err
	}
	if db != nil {
		if err := db.RecordTracking(capSum.SessionID, trackSum.PoseCount, trackSum.GoodRatio); err != nil {
			slog.Warn("index update failed", "error", err)
		}
	}

	reconParams := cfg.ReconParams()
	if *quality != "" {
		reconParams.Quality = *quality
	}
	reconSum, err := recon.Run(dir, reconParams, recon.DefaultCapabilities())
	if err != nil {
		return err
	}
	if db != nil {
		if err := db.RecordReconstruction(capSum.SessionID, reconSum.PointCount, reconSum.MeshGenerated, reconSum.Quality); err != nil {
			slog.Warn("index update failed", "error", err)
		}
	}

	if _, err := export.Run(dir); err != nil {
		return err
	}
	if _, err := report.Run(dir); err != nil {
		return err
	}
	fmt.Println(dir.Root)
	return nil
}

func cmdSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	out := fs.String("out", "sessions", "output root holding the session index")
	fs.Parse(args)

	db, err := sessiondb.Open(filepath.Join(*out, indexFile))
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.ListSessions()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no sessions indexed")
		return nil
	}
	fmt.Printf("%-40s %9s %7s %10s %8s %6s %s\n",
		"SESSION", "KEYFRAMES", "POSES", "GOOD_RATIO", "POINTS", "MESH", "QUALITY")
	for _, r := range rows {
		fmt.Printf("%-40s %9d %7d %10.2f %8d %6t %s\n",
			r.SessionID, r.Keyframes, r.PoseCount, r.GoodRatio, r.PointCount, r.MeshGenerated, r.QualityProfile)
	}
	return nil
}
