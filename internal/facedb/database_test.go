package facedb

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/kozaktomas/eigenfaces/internal/config"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
)

var testSubspace = config.SubspaceConfig{
	PCATolerance:      1e-8,
	LDARegularization: 1e-6,
	ICATolerance:      1e-4,
	ICAMaxIter:        200,
	ICASeed:           1,
}

var testImage = imageset.Config{Width: 8, Height: 8}

// writeFace writes a synthetic 16x16 face: a class-specific base shade with
// a sample-specific gradient so images differ within a class.
func writeFace(t *testing.T, path string, class, sample int) {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			v := 40*class + 3*sample + (x+y*sample)%17
			if v > 255 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
}

// makeTrainingDir builds a training directory with the given class labels
// and samples per class. Returns the directory and one sample path.
func makeTrainingDir(t *testing.T, labels []string, perClass int) (string, string) {
	t.Helper()

	dir := t.TempDir()
	var sample string
	for class, label := range labels {
		classDir := filepath.Join(dir, label)
		if err := os.Mkdir(classDir, 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		for s := range perClass {
			path := filepath.Join(classDir, "face"+string(rune('a'+s))+".png")
			writeFace(t, path, class, s)
			if sample == "" {
				sample = path
			}
		}
	}
	return dir, sample
}

func trainTestDB(t *testing.T, labels []string, perClass int, opts TrainOptions) (*Database, string) {
	t.Helper()

	dir, sample := makeTrainingDir(t, labels, perClass)
	opts.Image = testImage
	opts.Subspace = testSubspace
	db, err := Train(dir, opts)
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	return db, sample
}

func TestTrain_BasicInvariants(t *testing.T) {
	db, _ := trainTestDB(t, []string{"alice", "bob", "carol"}, 4, TrainOptions{})

	if db.NumClasses != 3 {
		t.Errorf("expected 3 classes, got %d", db.NumClasses)
	}
	if db.NumImages != 12 {
		t.Errorf("expected 12 images, got %d", db.NumImages)
	}
	if db.NumDimensions != 64 {
		t.Errorf("expected 64 dimensions, got %d", db.NumDimensions)
	}

	rank, cols := db.Wpca.Dims()
	if cols != db.NumDimensions {
		t.Errorf("PCA basis spans %d dimensions, expected %d", cols, db.NumDimensions)
	}
	if rank > db.NumImages-1 {
		t.Errorf("PCA rank %d exceeds numImages-1", rank)
	}

	pr, pc := db.Ppca.Dims()
	if pr != rank || pc != db.NumImages {
		t.Errorf("PCA projections are %dx%d, expected %dx%d", pr, pc, rank, db.NumImages)
	}

	if db.Space() != RefinementPCA {
		t.Errorf("expected PCA space, got %s", db.Space())
	}
}

func TestTrain_WithRefinements(t *testing.T) {
	db, _ := trainTestDB(t, []string{"alice", "bob", "carol"}, 4, TrainOptions{LDA: true, ICA: true})

	if db.Wlda == nil || db.Plda == nil {
		t.Fatal("expected LDA basis and projections")
	}
	if db.Wica == nil || db.Pica == nil {
		t.Fatal("expected ICA basis and projections")
	}

	if db.Space() != RefinementICA {
		t.Errorf("expected ICA space preference, got %s", db.Space())
	}

	ldaRows, _ := db.Wlda.Dims()
	if ldaRows > db.NumClasses-1 {
		t.Errorf("LDA rank %d exceeds numClasses-1", ldaRows)
	}

	// Every projection matrix must have one column per training image.
	for name, p := range map[string]*mat.Dense{"lda": db.Plda, "ica": db.Pica} {
		_, cols := p.Dims()
		if cols != db.NumImages {
			t.Errorf("%s projections have %d columns, expected %d", name, cols, db.NumImages)
		}
	}
}

func TestTrain_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := Train(dir, TrainOptions{Image: testImage, Subspace: testSubspace})
	if !errors.Is(err, ErrNoImages) {
		t.Errorf("expected ErrNoImages, got %v", err)
	}
}

func TestTrain_MinimalSamples(t *testing.T) {
	// One image per class: numImages == numClasses must still train.
	db, _ := trainTestDB(t, []string{"alice", "bob", "carol"}, 1, TrainOptions{LDA: true})

	rank, _ := db.Wpca.Dims()
	if rank != db.NumImages-1 {
		t.Errorf("expected PCA rank %d, got %d", db.NumImages-1, rank)
	}
}

func TestRecognize_TrainingImageRecall(t *testing.T) {
	db, sample := trainTestDB(t, []string{"alice", "bob", "carol"}, 4, TrainOptions{})

	match, err := db.RecognizeFile(sample, testImage, Euclidean{})
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}

	if match.Label != "alice" {
		t.Errorf("expected training image to recall its own class 'alice', got '%s'", match.Label)
	}
	if match.Distance > 1e-5 {
		t.Errorf("expected near-zero distance for exact training image, got %g", match.Distance)
	}
}

func TestRecognize_Idempotent(t *testing.T) {
	db, sample := trainTestDB(t, []string{"alice", "bob"}, 3, TrainOptions{LDA: true})

	first, err := db.RecognizeFile(sample, testImage, Euclidean{})
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}
	second, err := db.RecognizeFile(sample, testImage, Euclidean{})
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}

	if first.Label != second.Label || first.Entry != second.Entry || first.Distance != second.Distance {
		t.Errorf("recognition is not idempotent: %+v vs %+v", first, second)
	}
}

func TestRecognize_DimensionMismatch(t *testing.T) {
	db, _ := trainTestDB(t, []string{"alice", "bob"}, 3, TrainOptions{})

	wrong := mat.NewVecDense(10, nil)
	_, err := db.Recognize(wrong, Euclidean{})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRecognize_NotTrained(t *testing.T) {
	db := &Database{}
	_, err := db.Recognize(mat.NewVecDense(4, nil), Euclidean{})
	if !errors.Is(err, ErrNotTrained) {
		t.Errorf("expected ErrNotTrained, got %v", err)
	}
}

// tieBreakDB builds a database by hand with two training columns exactly
// equidistant from any query: the lower index must win.
func tieBreakDB() *Database {
	return &Database{
		NumClasses:    3,
		NumImages:     3,
		NumDimensions: 2,
		Labels:        []string{"alice", "bob", "carol"},
		Entries: []imageset.Entry{
			{Label: "alice", Class: 0},
			{Label: "bob", Class: 1},
			{Label: "carol", Class: 2},
		},
		MeanFace: mat.NewVecDense(2, []float64{0, 0}),
		Wpca:     mat.NewDense(1, 2, []float64{1, 0}),
		Ppca:     mat.NewDense(1, 3, []float64{1, 3, 3}),
	}
}

func TestRecognize_TieBreakLowestIndex(t *testing.T) {
	db := tieBreakDB()
	query := mat.NewVecDense(2, []float64{3, 0}) // projects to 3, ties columns 1 and 2

	for range 50 {
		match, err := db.Recognize(query, Euclidean{})
		if err != nil {
			t.Fatalf("recognize failed: %v", err)
		}
		if match.Entry != 1 || match.Label != "bob" {
			t.Fatalf("tie must resolve to the earliest-loaded column, got entry %d (%s)", match.Entry, match.Label)
		}
		if match.Distance != 0 {
			t.Fatalf("expected exact distance 0, got %g", match.Distance)
		}
	}
}

func TestMetric_Properties(t *testing.T) {
	a := mat.NewDense(3, 2, []float64{
		1, 4,
		2, 5,
		3, 6,
	})

	for _, m := range []Metric{Euclidean{}, Cosine{}} {
		if d := m.Distance(a, 0, a, 0); d != 0 {
			t.Errorf("%s: d(x,x) = %g, expected 0", m.Name(), d)
		}
		if d := m.Distance(a, 0, a, 1); d < 0 {
			t.Errorf("%s: negative distance %g", m.Name(), d)
		}
	}
}

func TestMetricByName(t *testing.T) {
	if _, err := MetricByName("euclidean"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := MetricByName("cosine"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := MetricByName("manhattan"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestEuclidean_KnownValue(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{
		0, 3,
		0, 4,
	})

	if d := (Euclidean{}).Distance(a, 0, a, 1); math.Abs(d-5) > 1e-12 {
		t.Errorf("expected distance 5, got %g", d)
	}
}
