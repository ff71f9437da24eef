package subspace

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ICAConfig carries the knobs for the fixed-point iteration. Seed makes
// component initialization reproducible; without a fixed seed the basis is
// valid but not bit-identical across runs.
type ICAConfig struct {
	Seed    int64
	Tol     float64
	MaxIter int
}

// ICA derives an independent component basis from the PCA-projected
// training set p (columns are samples). The projections are whitened per
// coordinate, then components are extracted one at a time with the FastICA
// fixed-point rule (tanh nonlinearity): iterate the negentropy update,
// deflate against previously extracted components, renormalize, until the
// direction stabilizes within cfg.Tol or cfg.MaxIter is reached. Hitting
// the cap is not an error; the component is kept best-effort.
//
// The number of components equals the PCA rank, and the whitening scale is
// folded into the returned transposed basis, so it applies directly to raw
// PCA projections.
func ICA(p *mat.Dense, cfg ICAConfig) (*mat.Dense, error) {
	k, n := p.Dims()
	if cfg.MaxIter <= 0 || cfg.Tol <= 0 {
		return nil, errors.New("subspace: ICA requires positive iteration cap and tolerance")
	}

	// Whiten: PCA projections of centered data have zero-mean rows, so
	// scaling each row to unit variance is enough.
	scale := make([]float64, k)
	z := mat.NewDense(k, n, nil)
	for i := range k {
		var ss float64
		for j := range n {
			v := p.At(i, j)
			ss += v * v
		}
		sd := math.Sqrt(ss / float64(n))
		if sd > 0 {
			scale[i] = 1 / sd
		} else {
			scale[i] = 1
		}
		for j := range n {
			z.Set(i, j, p.At(i, j)*scale[i])
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	// Extracted component directions, rows of ws, in whitened coordinates.
	ws := make([][]float64, 0, k)
	w := make([]float64, k)
	wNew := make([]float64, k)
	y := make([]float64, n)

	for comp := 0; comp < k; comp++ {
		randomUnit(rng, w)

		for iter := 0; iter < cfg.MaxIter; iter++ {
			// y_j = w^T z_j for every sample.
			for j := range n {
				var dot float64
				for i := range k {
					dot += w[i] * z.At(i, j)
				}
				y[j] = dot
			}

			// w_new = E[z tanh(y)] - E[1 - tanh^2(y)] w
			var gSum float64
			for i := range wNew {
				wNew[i] = 0
			}
			for j := range n {
				th := math.Tanh(y[j])
				for i := range k {
					wNew[i] += z.At(i, j) * th
				}
				gSum += 1 - th*th
			}
			inv := 1 / float64(n)
			for i := range k {
				wNew[i] = wNew[i]*inv - gSum*inv*w[i]
			}

			// Deflation: remove the directions already extracted so the
			// components stay mutually decorrelated. Order matters here;
			// component comp depends on components 0..comp-1.
			for _, prev := range ws {
				var dot float64
				for i := range k {
					dot += wNew[i] * prev[i]
				}
				for i := range k {
					wNew[i] -= dot * prev[i]
				}
			}

			if !normalize(wNew) {
				// Degenerate direction, restart from a fresh random vector.
				randomUnit(rng, w)
				continue
			}

			// Converged when the new direction is parallel to the old one
			// (sign flips are equivalent solutions).
			var dot float64
			for i := range k {
				dot += wNew[i] * w[i]
			}
			copy(w, wNew)
			if math.Abs(math.Abs(dot)-1) < cfg.Tol {
				break
			}
		}

		extracted := make([]float64, k)
		copy(extracted, w)
		ws = append(ws, extracted)
	}

	// Fold the whitening into the basis: row operates on raw PCA projections.
	wtr := mat.NewDense(k, k, nil)
	for row, comp := range ws {
		for i := range k {
			wtr.Set(row, i, comp[i]*scale[i])
		}
	}

	return wtr, nil
}

// randomUnit fills w with a random unit-norm vector.
func randomUnit(rng *rand.Rand, w []float64) {
	for {
		for i := range w {
			w[i] = rng.NormFloat64()
		}
		if normalize(w) {
			return
		}
	}
}

// normalize scales w to unit norm, reporting false for a zero vector.
func normalize(w []float64) bool {
	var ss float64
	for _, v := range w {
		ss += v * v
	}
	norm := math.Sqrt(ss)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return false
	}
	for i := range w {
		w[i] /= norm
	}
	return true
}
