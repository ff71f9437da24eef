package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/eigenfaces/internal/config"
	"github.com/kozaktomas/eigenfaces/internal/facedb"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
)

var trainCmd = &cobra.Command{
	Use:   "train <training-dir>",
	Short: "Train a face recognition model from a directory of labeled images",
	Long: `Train a face recognition model from a directory of labeled images.

The directory must contain one subdirectory per person; the subdirectory
name becomes the class label and every image file inside it is one
training sample of that person.

The trained model is written as two companion artifacts: a human-readable
training-set descriptor (YAML) and a binary training-data blob.

Examples:
  # Train a plain PCA (eigenface) model
  eigenfaces train ./faces

  # Add the LDA (fisherface) refinement
  eigenfaces train ./faces --lda

  # Full pipeline with a reproducible ICA basis
  eigenfaces train ./faces --lda --ica --ica-seed 42

  # Choose the artifact locations
  eigenfaces train ./faces --tset model.yaml --tdata model.dat`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().Bool("lda", false, "Train an LDA (fisherface) basis on top of PCA")
	trainCmd.Flags().Bool("ica", false, "Train an ICA basis on top of PCA")
	trainCmd.Flags().Int64("ica-seed", 0, "Seed for ICA initialization (0 = use EIGENFACES_ICA_SEED)")
	trainCmd.Flags().String("tset", "trainingset.yaml", "Output path for the training set descriptor")
	trainCmd.Flags().String("tdata", "trainingdata.dat", "Output path for the training data blob")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	path := args[0]

	opts := facedb.TrainOptions{
		LDA:      mustGetBool(cmd, "lda"),
		ICA:      mustGetBool(cmd, "ica"),
		Image:    imageset.Config{Width: cfg.Image.Width, Height: cfg.Image.Height},
		Subspace: cfg.Subspace,
	}
	if seed := mustGetInt64(cmd, "ica-seed"); seed != 0 {
		opts.Subspace.ICASeed = seed
	}

	total, err := countImages(path)
	if err != nil {
		return err
	}
	if total == 0 {
		return fmt.Errorf("no training images found under %s", path)
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Loading images"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
	opts.OnImage = func() { _ = bar.Add(1) }

	db, err := facedb.Train(path, opts)
	if err != nil {
		return err
	}
	fmt.Println()

	fmt.Printf("Trained %s model: %d classes, %d images, %d dimensions\n",
		db.Space(), db.NumClasses, db.NumImages, db.NumDimensions)

	tset := mustGetString(cmd, "tset")
	tdata := mustGetString(cmd, "tdata")
	if err := db.Save(tset, tdata); err != nil {
		return err
	}
	fmt.Printf("Saved model %s\n", db.ModelID)
	fmt.Printf("  Descriptor: %s\n", tset)
	fmt.Printf("  Data:       %s\n", tdata)
	return nil
}

// countImages counts the regular files one level below path's class
// subdirectories, for progress reporting.
func countImages(path string) (int, error) {
	dirs, err := os.ReadDir(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read training directory %s: %w", path, err)
	}

	total := 0
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(path, d.Name()))
		if err != nil {
			return 0, err
		}
		for _, f := range files {
			if !f.IsDir() {
				total++
			}
		}
	}
	return total, nil
}
