// Command lidar-pc drives the monocular reconstruction pipeline: capture
// image sequences into sessions, track camera motion, triangulate point
// clouds, and export or report the results.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"github.com/amtellezfernandez/lidar-pc/internal/monitoring"
	"github.com/amtellezfernandez/lidar-pc/internal/version"
)

func main() {
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: "15:04:05",
		}),
	)
	slog.SetDefault(logger)
	monitoring.SetLogger(func(format string, v ...interface{}) {
		slog.Info(fmt.Sprintf(format, v...))
	})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	command, args := os.Args[1], os.Args[2:]
	var err error
	switch command {
	case "capture":
		err = cmdCapture(args)
	case "track":
		err = cmdTrack(args)
	case "reconstruct":
		err = cmdReconstruct(args)
	case "export":
		err = cmdExport(args)
	case "report":
		err = cmdReport(args)
	case "pipeline":
		err = cmdPipeline(args)
	case "sessions":
		err = cmdSessions(args)
	case "version":
		fmt.Println("lidar-pc " + version.String())
		return
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: lidar-pc <command> [flags]

Commands:
  capture      ingest an image directory into a new session
  track        estimate the camera trajectory of a session
  reconstruct  triangulate a point cloud from a tracked session
  export       bundle a session into capture packets
  report       render trajectory plots for a session
  pipeline     run capture, track, reconstruct, export and report
  sessions     list indexed pipeline runs
  version      print build information

Run 'lidar-pc <command> -h' for command flags.
`)
}
