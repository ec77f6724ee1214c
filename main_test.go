package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amtellezfernandez/lidar-pc/internal/session"
)

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	// No explicit path and no defaults file in the test working dir.
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GetKeyframeInterval() != 4 || cfg.GetQualityProfile() != "high" {
		t.Errorf("expected built-in defaults, got interval=%d quality=%q",
			cfg.GetKeyframeInterval(), cfg.GetQualityProfile())
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(`{"min_inliers": 14}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GetMinInliers() != 14 {
		t.Errorf("min_inliers = %d, want 14", cfg.GetMinInliers())
	}
}

func TestLoadConfigSurfacesBadFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(`{"keyframe_interval": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestSessionIDFallsBackToDirName(t *testing.T) {
	dir := session.Dir{Root: filepath.Join(t.TempDir(), "session_20260828_abc")}
	if got := sessionID(dir); got != "session_20260828_abc" {
		t.Errorf("sessionID = %q, want the directory name", got)
	}

	if err := session.WriteJSON(dir.MetaPath(), session.Meta{SessionID: "named"}); err != nil {
		t.Fatal(err)
	}
	if got := sessionID(dir); got != "named" {
		t.Errorf("sessionID = %q, want the metadata id", got)
	}
}
