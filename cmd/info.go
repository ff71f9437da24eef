package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/eigenfaces/internal/facedb"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show metadata of a trained model",
	Long: `Show metadata of a trained model: identity, counts, trained subspaces,
and the per-class sample distribution.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().String("tset", "trainingset.yaml", "Path to the training set descriptor")
	infoCmd.Flags().String("tdata", "trainingdata.dat", "Path to the training data blob")
}

func runInfo(cmd *cobra.Command, args []string) error {
	db, err := facedb.Load(mustGetString(cmd, "tset"), mustGetString(cmd, "tdata"))
	if err != nil {
		return err
	}

	fmt.Printf("Model:      %s\n", db.ModelID)
	if !db.TrainedAt.IsZero() {
		fmt.Printf("Trained:    %s\n", db.TrainedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("Subspace:   %s\n", db.Space())
	fmt.Printf("Classes:    %d\n", db.NumClasses)
	fmt.Printf("Images:     %d\n", db.NumImages)
	fmt.Printf("Dimensions: %d\n", db.NumDimensions)

	rank, _ := db.Wpca.Dims()
	fmt.Printf("PCA rank:   %d\n", rank)
	if db.Wlda != nil {
		ldaRank, _ := db.Wlda.Dims()
		fmt.Printf("LDA rank:   %d\n", ldaRank)
	}
	if db.Wica != nil {
		icaRank, _ := db.Wica.Dims()
		fmt.Printf("ICA rank:   %d\n", icaRank)
	}

	counts := make([]int, db.NumClasses)
	for _, e := range db.Entries {
		counts[e.Class]++
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLASS\tLABEL\tSAMPLES")
	for class, label := range db.Labels {
		fmt.Fprintf(w, "%d\t%s\t%d\n", class, label, counts[class])
	}
	return w.Flush()
}
