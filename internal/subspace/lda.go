package subspace

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LDA computes the Fisher discriminant basis in PCA-reduced space. p holds
// the PCA-projected training set (columns are samples), classes assigns
// each column to a class index, and numClasses is the class count. The
// returned basis is transposed (rows are discriminant directions, unit
// norm) and holds at most numClasses-1 rows, the rank bound of the
// between-class scatter.
//
// When within-class scatter is singular, common with few samples per
// class, reg*I diagonal loading is applied before inversion. That keeps
// training best-effort instead of failing; small per-class sample counts
// are the normal case for face databases, not an error.
func LDA(p *mat.Dense, classes []int, numClasses int, reg float64) (*mat.Dense, error) {
	k, n := p.Dims()
	if len(classes) != n {
		return nil, errors.New("subspace: class assignment length does not match sample count")
	}

	global := colMean(p)

	classMean := make([]*mat.VecDense, numClasses)
	classSize := make([]int, numClasses)
	for i := range classMean {
		classMean[i] = mat.NewVecDense(k, nil)
	}
	for j := range n {
		c := classes[j]
		classMean[c].AddVec(classMean[c], p.ColView(j))
		classSize[c]++
	}
	for c := range classMean {
		if classSize[c] == 0 {
			return nil, errors.New("subspace: empty class in training set")
		}
		classMean[c].ScaleVec(1/float64(classSize[c]), classMean[c])
	}

	// Within-class scatter: sum over samples of (x - mu_c)(x - mu_c)^T.
	sw := mat.NewDense(k, k, nil)
	diff := mat.NewVecDense(k, nil)
	for j := range n {
		diff.SubVec(p.ColView(j), classMean[classes[j]])
		sw.RankOne(sw, 1, diff, diff)
	}

	// Between-class scatter: sum over classes of n_c (mu_c - mu)(mu_c - mu)^T.
	sb := mat.NewDense(k, k, nil)
	for c := range numClasses {
		diff.SubVec(classMean[c], global)
		sb.RankOne(sb, float64(classSize[c]), diff, diff)
	}

	// Invert Sw, loading the diagonal progressively if it is singular.
	var swInv mat.Dense
	load := 0.0
	for attempt := 0; ; attempt++ {
		loaded := mat.DenseCopyOf(sw)
		if load > 0 {
			for i := range k {
				loaded.Set(i, i, loaded.At(i, i)+load)
			}
		}
		if err := swInv.Inverse(loaded); err == nil {
			break
		}
		if attempt >= 3 {
			return nil, errors.New("subspace: within-class scatter not invertible after regularization")
		}
		if load == 0 {
			load = reg
		} else {
			load *= 100
		}
	}

	// Generalized eigenproblem as a plain eigendecomposition of Sw^-1 Sb.
	var ratio mat.Dense
	ratio.Mul(&swInv, sb)

	var eig mat.Eigen
	if ok := eig.Factorize(&ratio, mat.EigenRight); !ok {
		return nil, errors.New("subspace: discriminant eigendecomposition failed")
	}

	cvals := eig.Values(nil)
	var cvecs mat.CDense
	eig.VectorsTo(&cvecs)

	// Rank of Sb is at most numClasses-1; order by descending real part.
	vals := make([]float64, len(cvals))
	for i, v := range cvals {
		vals[i] = real(v)
	}
	order := descendingOrder(vals)

	m := numClasses - 1
	if m > k {
		m = k
	}
	if m < 1 {
		m = 1
	}

	w := mat.NewDense(m, k, nil)
	for row := range m {
		col := order[row]
		norm := 0.0
		for i := range k {
			re := real(cvecs.At(i, col))
			w.Set(row, i, re)
			norm += re * re
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for i := range k {
				w.Set(row, i, w.At(row, i)/norm)
			}
		}
	}

	return w, nil
}
