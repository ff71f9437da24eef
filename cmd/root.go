package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "eigenfaces",
	Short: "A face recognition engine built on statistical subspace projection",
	Long: `Eigenfaces trains a face recognition model from a directory of labeled
images (one subdirectory per person), persists it as a training-set
descriptor plus a training-data blob, and recognizes query images by
nearest-neighbor search in the trained subspace.

The model is always a PCA (eigenface) basis; LDA (fisherface) and ICA
refinements can be layered on top at training time.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
