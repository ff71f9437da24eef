package facedb

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
	"gonum.org/v1/gonum/mat"
)

// hnswMaxNeighbors is the M parameter of the HNSW graph.
const hnswMaxNeighbors = 16

// Index is an approximate nearest-neighbor index over the projected
// training set, for interactive top-k queries against large databases.
// Recognition deliberately does not use it: the exact linear scan
// guarantees the lowest-index tie-break, an approximate index does not.
type Index struct {
	db    *Database
	space Refinement
	graph *hnsw.Graph[int]
	mu    sync.RWMutex
}

// Neighbor is one entry of a top-k query result.
type Neighbor struct {
	Entry    int
	Class    int
	Label    string
	File     string
	Distance float64
}

// BuildIndex builds an HNSW graph over the training projections in the
// database's most refined subspace.
func (db *Database) BuildIndex() (*Index, error) {
	if db.Wpca == nil {
		return nil, ErrNotTrained
	}

	space := db.Space()
	p := db.projections(space)
	rows, cols := p.Dims()

	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance

	for j := range cols {
		vec := make([]float32, rows)
		for i := range rows {
			vec[i] = float32(p.At(i, j))
		}
		g.Add(hnsw.MakeNode(j, vec))
	}

	return &Index{db: db, space: space, graph: g}, nil
}

// Search projects the query vector and returns its k nearest training
// entries. Distances are Euclidean in the indexed subspace, recomputed in
// float64 from the stored projections.
func (ix *Index) Search(v *mat.VecDense, k int) ([]Neighbor, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil {
		return nil, errors.New("facedb: index not initialized")
	}

	proj, space, err := ix.db.Project(v)
	if err != nil {
		return nil, err
	}
	if space != ix.space {
		return nil, errors.New("facedb: database subspace changed since the index was built")
	}

	query := make([]float32, proj.Len())
	for i := range query {
		query[i] = float32(proj.AtVec(i))
	}

	nodes := ix.graph.Search(query, k)
	p := ix.db.projections(space)

	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		e := ix.db.Entries[n.Key]
		out = append(out, Neighbor{
			Entry:    n.Key,
			Class:    e.Class,
			Label:    e.Label,
			File:     e.File,
			Distance: Euclidean{}.Distance(proj, 0, p, n.Key),
		})
	}
	return out, nil
}
