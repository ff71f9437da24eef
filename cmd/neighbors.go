package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eigenfaces/internal/config"
	"github.com/kozaktomas/eigenfaces/internal/facedb"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <image>",
	Short: "List the training images nearest to a query",
	Long: `List the k training images nearest to a query in the trained subspace.

Uses an HNSW index for the lookup, so results on large databases come
back fast at the cost of being approximate. For the exact classification
decision use 'recognize' instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runNeighbors,
}

func init() {
	rootCmd.AddCommand(neighborsCmd)

	neighborsCmd.Flags().String("tset", "trainingset.yaml", "Path to the training set descriptor")
	neighborsCmd.Flags().String("tdata", "trainingdata.dat", "Path to the training data blob")
	neighborsCmd.Flags().Int("k", 5, "Number of neighbors to return")
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	db, err := facedb.Load(mustGetString(cmd, "tset"), mustGetString(cmd, "tdata"))
	if err != nil {
		return err
	}

	index, err := db.BuildIndex()
	if err != nil {
		return err
	}

	imgCfg := imageset.Config{Width: cfg.Image.Width, Height: cfg.Image.Height}
	v, err := imageset.LoadImage(args[0], imgCfg)
	if err != nil {
		return err
	}

	neighbors, err := index.Search(v, mustGetInt(cmd, "k"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tDISTANCE\tFILE")
	for _, n := range neighbors {
		fmt.Fprintf(w, "%s\t%.4f\t%s\n", n.Label, n.Distance, n.File)
	}
	return w.Flush()
}
