package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eigenfaces/internal/config"
	"github.com/kozaktomas/eigenfaces/internal/facedb"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
	"github.com/kozaktomas/eigenfaces/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a trained model over HTTP",
	Long: `Serve a trained model over HTTP.

The server loads the model once at startup and answers recognition and
neighbor queries against it:

  GET  /healthz        liveness probe
  GET  /api/model      model metadata
  POST /api/recognize  multipart 'image' upload, returns the matched label
  POST /api/neighbors  multipart 'image' upload, returns top-k neighbors`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("tset", "trainingset.yaml", "Path to the training set descriptor")
	serveCmd.Flags().String("tdata", "trainingdata.dat", "Path to the training data blob")
	serveCmd.Flags().Int("port", 0, "Port to listen on (default from EIGENFACES_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from EIGENFACES_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	port := mustGetInt(cmd, "port")
	if port == 0 {
		port = cfg.Server.Port
	}
	host := mustGetString(cmd, "host")
	if host == "" {
		host = cfg.Server.Host
	}

	metric, err := facedb.MetricByName(cfg.Recognizer.Metric)
	if err != nil {
		return err
	}

	db, err := facedb.Load(mustGetString(cmd, "tset"), mustGetString(cmd, "tdata"))
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %s model %s: %d classes, %d images\n", db.Space(), db.ModelID, db.NumClasses, db.NumImages)

	imgCfg := imageset.Config{Width: cfg.Image.Width, Height: cfg.Image.Height}
	if imgCfg.Width*imgCfg.Height != db.NumDimensions {
		return fmt.Errorf("configured geometry %dx%d does not match the model's %d dimensions",
			imgCfg.Width, imgCfg.Height, db.NumDimensions)
	}

	server, err := web.NewServer(db, metric, imgCfg, host, port)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Serving recognition API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
