package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eigenfaces/internal/config"
	"github.com/kozaktomas/eigenfaces/internal/facedb"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image> [image...]",
	Short: "Recognize query images against a trained model",
	Long: `Recognize one or more query images against a trained model.

Each query is projected into the model's most refined subspace (ICA over
LDA over PCA) and classified as the person whose training projection is
nearest under the configured distance metric.

Examples:
  # Recognize a single image
  eigenfaces recognize query.png

  # Use the cosine metric and explicit artifact paths
  eigenfaces recognize query.png --metric cosine --tset model.yaml --tdata model.dat

  # Check the result against an expected person (exit code 1 on mismatch)
  eigenfaces recognize query.png --expect "Jiří Novák"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("tset", "trainingset.yaml", "Path to the training set descriptor")
	recognizeCmd.Flags().String("tdata", "trainingdata.dat", "Path to the training data blob")
	recognizeCmd.Flags().String("metric", "", "Distance metric (euclidean, cosine; default from EIGENFACES_METRIC)")
	recognizeCmd.Flags().String("expect", "", "Expected label; exit non-zero when the match differs")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

type recognizeResult struct {
	Image    string  `json:"image"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
	Space    string  `json:"space"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	metricName := mustGetString(cmd, "metric")
	if metricName == "" {
		metricName = cfg.Recognizer.Metric
	}
	metric, err := facedb.MetricByName(metricName)
	if err != nil {
		return err
	}

	db, err := facedb.Load(mustGetString(cmd, "tset"), mustGetString(cmd, "tdata"))
	if err != nil {
		return err
	}

	imgCfg := imageset.Config{Width: cfg.Image.Width, Height: cfg.Image.Height}
	if imgCfg.Width*imgCfg.Height != db.NumDimensions {
		return fmt.Errorf("configured geometry %dx%d does not match the model's %d dimensions",
			imgCfg.Width, imgCfg.Height, db.NumDimensions)
	}

	expect := mustGetString(cmd, "expect")
	jsonOutput := mustGetBool(cmd, "json")

	var results []recognizeResult
	mismatch := false
	for _, path := range args {
		match, err := db.RecognizeFile(path, imgCfg, metric)
		if err != nil {
			return err
		}

		results = append(results, recognizeResult{
			Image:    path,
			Label:    match.Label,
			Distance: match.Distance,
			Space:    match.Space.String(),
		})

		if expect != "" && imageset.NormalizeLabel(match.Label) != imageset.NormalizeLabel(expect) {
			mismatch = true
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Printf("%s: %s (distance %.4f, %s space)\n", r.Image, r.Label, r.Distance, r.Space)
		}
	}

	if mismatch {
		return fmt.Errorf("at least one image did not match expected label %q", expect)
	}
	return nil
}
