// Package subspace implements the linear projections used for face
// recognition: PCA (always), plus optional LDA and ICA refinements that
// operate on the PCA output. All bases are returned transposed (rows are
// basis vectors) so projecting a centered column vector is a single
// matrix-vector product.
package subspace

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrNoComponents is returned when a training set carries no usable
// variance (for example a single image, or all images identical).
var ErrNoComponents = errors.New("subspace: no components above tolerance")

// PCA computes the principal component basis of x, whose columns are the
// training vectors. It returns the basis transposed (rows are orthonormal
// eigenfaces) together with the mean column vector used for centering.
//
// The eigendecomposition runs on the small numImages x numImages Gram
// matrix of the centered data rather than the full covariance matrix,
// the standard trick for numDimensions >> numImages. Eigenvalues at or
// below tol are dropped so numerical noise does not inflate the basis,
// and the rank never exceeds numImages-1 (centering removes one degree
// of freedom). Training sets with fewer images than classes therefore
// still train, just with a truncated basis.
func PCA(x *mat.Dense, tol float64) (*mat.Dense, *mat.VecDense, error) {
	d, n := x.Dims()

	mean := colMean(x)

	// Center the data in a copy; the caller keeps ownership of x.
	xc := mat.NewDense(d, n, nil)
	for j := range n {
		for i := range d {
			xc.Set(i, j, x.At(i, j)-mean.AtVec(i))
		}
	}

	// Gram matrix L = Xc^T Xc, n x n symmetric.
	var gram mat.Dense
	gram.Mul(xc.T(), xc)
	sym := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, gram.At(i, j))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, nil, errors.New("subspace: Gram matrix eigendecomposition failed")
	}

	vals := eig.Values(nil) // ascending order
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Walk eigenvalues from largest to smallest, keeping at most n-1.
	var keep []int
	for k := n - 1; k >= 0 && len(keep) < n-1; k-- {
		if vals[k] > tol {
			keep = append(keep, k)
		}
	}
	if len(keep) == 0 {
		return nil, nil, ErrNoComponents
	}

	// Map Gram eigenvectors back to image space: u = Xc v / sqrt(lambda).
	// The division makes every basis row unit-norm since |Xc v|^2 = lambda.
	w := mat.NewDense(len(keep), d, nil)
	u := mat.NewVecDense(d, nil)
	for row, k := range keep {
		v := vecs.ColView(k)
		u.MulVec(xc, v)
		scale := 1 / math.Sqrt(vals[k])
		for i := range d {
			w.Set(row, i, u.AtVec(i)*scale)
		}
	}

	return w, mean, nil
}

// Project maps a raw image vector into the PCA subspace: Wtr * (v - mean).
func Project(wtr *mat.Dense, mean, v *mat.VecDense) *mat.VecDense {
	d := v.Len()
	centered := mat.NewVecDense(d, nil)
	centered.SubVec(v, mean)

	k, _ := wtr.Dims()
	out := mat.NewVecDense(k, nil)
	out.MulVec(wtr, centered)
	return out
}

// colMean returns the mean of x's columns as a column vector.
func colMean(x *mat.Dense) *mat.VecDense {
	d, n := x.Dims()
	mean := mat.NewVecDense(d, nil)
	for j := range n {
		mean.AddVec(mean, x.ColView(j))
	}
	mean.ScaleVec(1/float64(n), mean)
	return mean
}

// descendingOrder returns index order sorting vals from largest to smallest.
func descendingOrder(vals []float64) []int {
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return vals[order[a]] > vals[order[b]]
	})
	return order
}
