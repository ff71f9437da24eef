// Package facedb owns the trained face-recognition model: the training
// entries, the mean face, the PCA basis and its optional LDA/ICA
// refinements, the projected training set, and the save/load/recognize
// lifecycle around them.
package facedb

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kozaktomas/eigenfaces/internal/config"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
	"github.com/kozaktomas/eigenfaces/internal/subspace"
)

var (
	// ErrNoImages means the training directory yielded no usable samples.
	ErrNoImages = errors.New("facedb: no training images found")
	// ErrNotTrained means recognize was called before train or load.
	ErrNotTrained = errors.New("facedb: database is not trained")
	// ErrDimensionMismatch means a query vector does not match the
	// dimensionality the database was trained with.
	ErrDimensionMismatch = errors.New("facedb: query dimension mismatch")
)

// Refinement identifies the most refined subspace a database carries.
// Each level presupposes the previous ones at recognition time: a query is
// always centered and PCA-projected first, then optionally pushed through
// the LDA or ICA basis.
type Refinement int

const (
	RefinementPCA Refinement = iota
	RefinementLDA
	RefinementICA
)

func (r Refinement) String() string {
	switch r {
	case RefinementLDA:
		return "pca+lda"
	case RefinementICA:
		return "pca+ica"
	default:
		return "pca"
	}
}

// Database is the aggregate root of a trained model. All matrices are
// owned exclusively by the database; tests and callers must not mutate
// them. Column i of every projection matrix corresponds to Entries[i].
type Database struct {
	ModelID   string    // assigned on first save
	TrainedAt time.Time // assigned with the model id

	NumClasses    int
	NumImages     int
	NumDimensions int

	Labels  []string // class index -> label
	Entries []imageset.Entry

	MeanFace *mat.VecDense
	Wpca     *mat.Dense // PCA basis, transposed (rows are eigenfaces)
	Ppca     *mat.Dense // PCA-projected training set, one column per entry

	Wlda *mat.Dense // nil unless trained with LDA
	Plda *mat.Dense
	Wica *mat.Dense // nil unless trained with ICA
	Pica *mat.Dense
}

// TrainOptions selects the refinements and carries the numeric
// configuration. OnImage, when non-nil, is invoked once per loaded
// training image for progress reporting.
type TrainOptions struct {
	LDA bool
	ICA bool

	Image    imageset.Config
	Subspace config.SubspaceConfig

	OnImage func()
}

// Train loads every labeled image under path (one subdirectory per class),
// computes the PCA basis and training projections, and layers LDA and/or
// ICA on top when requested. Configuration problems (no images,
// inconsistent dimensions) are fatal; numerical trouble inside LDA/ICA is
// handled there and never aborts training.
func Train(path string, opts TrainOptions) (*Database, error) {
	entries, labels, err := imageset.Load(path, opts.Image, opts.OnImage)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoImages, path)
	}

	dims := entries[0].Data.Len()
	for _, e := range entries {
		if e.Data.Len() != dims {
			return nil, fmt.Errorf("facedb: image %s has %d dimensions, expected %d", e.File, e.Data.Len(), dims)
		}
	}

	n := len(entries)
	x := mat.NewDense(dims, n, nil)
	classes := make([]int, n)
	for j, e := range entries {
		x.SetCol(j, rawVec(e.Data))
		classes[j] = e.Class
	}

	wpca, mean, err := subspace.PCA(x, opts.Subspace.PCATolerance)
	if err != nil {
		return nil, err
	}

	// Project the centered training set into PCA space.
	xc := mat.NewDense(dims, n, nil)
	for j := range n {
		for i := range dims {
			xc.Set(i, j, x.At(i, j)-mean.AtVec(i))
		}
	}
	var ppca mat.Dense
	ppca.Mul(wpca, xc)

	db := &Database{
		NumClasses:    len(labels),
		NumImages:     n,
		NumDimensions: dims,
		Labels:        labels,
		Entries:       entries,
		MeanFace:      mean,
		Wpca:          wpca,
		Ppca:          &ppca,
	}

	if opts.LDA {
		wlda, err := subspace.LDA(&ppca, classes, len(labels), opts.Subspace.LDARegularization)
		if err != nil {
			return nil, err
		}
		var plda mat.Dense
		plda.Mul(wlda, &ppca)
		db.Wlda = wlda
		db.Plda = &plda
	}

	if opts.ICA {
		wica, err := subspace.ICA(&ppca, subspace.ICAConfig{
			Seed:    opts.Subspace.ICASeed,
			Tol:     opts.Subspace.ICATolerance,
			MaxIter: opts.Subspace.ICAMaxIter,
		})
		if err != nil {
			return nil, err
		}
		var pica mat.Dense
		pica.Mul(wica, &ppca)
		db.Wica = wica
		db.Pica = &pica
	}

	return db, nil
}

// Space reports the most refined subspace available, the one Recognize
// uses: ICA over LDA over PCA.
func (db *Database) Space() Refinement {
	switch {
	case db.Wica != nil:
		return RefinementICA
	case db.Wlda != nil:
		return RefinementLDA
	default:
		return RefinementPCA
	}
}

// projections returns the stored training projections for the given space.
func (db *Database) projections(space Refinement) *mat.Dense {
	switch space {
	case RefinementICA:
		return db.Pica
	case RefinementLDA:
		return db.Plda
	default:
		return db.Ppca
	}
}

// Project maps a raw query vector into the database's most refined
// subspace. Fails with a configuration error when the database is empty or
// the vector length does not match the training dimensionality.
func (db *Database) Project(v *mat.VecDense) (*mat.VecDense, Refinement, error) {
	if db.Wpca == nil {
		return nil, RefinementPCA, ErrNotTrained
	}
	if v.Len() != db.NumDimensions {
		return nil, RefinementPCA, fmt.Errorf("%w: got %d, trained with %d", ErrDimensionMismatch, v.Len(), db.NumDimensions)
	}

	proj := subspace.Project(db.Wpca, db.MeanFace, v)
	space := db.Space()
	switch space {
	case RefinementICA:
		out := mat.NewVecDense(rows(db.Wica), nil)
		out.MulVec(db.Wica, proj)
		proj = out
	case RefinementLDA:
		out := mat.NewVecDense(rows(db.Wlda), nil)
		out.MulVec(db.Wlda, proj)
		proj = out
	}
	return proj, space, nil
}

// Match is the result of recognizing one query image.
type Match struct {
	Label    string
	Class    int
	Entry    int // index of the nearest training entry
	Distance float64
	Space    Refinement
}

// Recognize projects the query vector into the most refined subspace and
// returns the class of the nearest training projection under metric.
// Ties resolve to the earliest-loaded training column: the scan compares
// with strict less-than in ascending index order.
func (db *Database) Recognize(v *mat.VecDense, metric Metric) (Match, error) {
	proj, space, err := db.Project(v)
	if err != nil {
		return Match{}, err
	}

	p := db.projections(space)
	_, n := p.Dims()

	best := 0
	bestDist := metric.Distance(proj, 0, p, 0)
	for j := 1; j < n; j++ {
		if d := metric.Distance(proj, 0, p, j); d < bestDist {
			best = j
			bestDist = d
		}
	}

	class := db.Entries[best].Class
	return Match{
		Label:    db.Labels[class],
		Class:    class,
		Entry:    best,
		Distance: bestDist,
		Space:    space,
	}, nil
}

// RecognizeFile loads a query image at the database's training geometry
// and recognizes it.
func (db *Database) RecognizeFile(path string, img imageset.Config, metric Metric) (Match, error) {
	v, err := imageset.LoadImage(path, img)
	if err != nil {
		return Match{}, err
	}
	return db.Recognize(v, metric)
}

func rows(m *mat.Dense) int {
	r, _ := m.Dims()
	return r
}

func rawVec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
