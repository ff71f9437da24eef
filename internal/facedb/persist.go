package facedb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/eigenfaces/internal/imageset"
)

// A trained database persists as two companion artifacts: a YAML
// descriptor holding counts, labels and per-entry class assignments (the
// part a human inspects) and a binary data blob holding the mean face,
// bases and projections.
// The loader cross-checks every count declared in the descriptor against
// the matrix dimensions found in the blob before accepting either.

var (
	// ErrArtifactMismatch means the descriptor and data files disagree
	// about counts, dimensions, or present subspaces.
	ErrArtifactMismatch = errors.New("facedb: training set and training data artifacts do not match")
	// ErrBadArtifact means an artifact is corrupt or not ours.
	ErrBadArtifact = errors.New("facedb: unrecognized artifact format")
)

var dataMagic = [8]byte{'E', 'F', 'A', 'C', 'E', 'D', 'B', 0}

const dataVersion uint8 = 1

const (
	flagLDA uint8 = 1 << 0
	flagICA uint8 = 1 << 1
)

// descriptor is the YAML shape of the training-set artifact.
type descriptor struct {
	ModelID       string            `yaml:"model_id"`
	TrainedAt     time.Time         `yaml:"trained_at"`
	NumClasses    int               `yaml:"num_classes"`
	NumImages     int               `yaml:"num_images"`
	NumDimensions int               `yaml:"num_dimensions"`
	LDA           bool              `yaml:"lda"`
	ICA           bool              `yaml:"ica"`
	Labels        []string          `yaml:"labels"`
	Entries       []descriptorEntry `yaml:"entries"`
}

type descriptorEntry struct {
	File  string `yaml:"file"`
	Class int    `yaml:"class"`
}

// Save writes the training-set descriptor to tsetPath and the training-data
// blob to tdataPath. A model id and timestamp are assigned on first save
// and preserved on later ones.
func (db *Database) Save(tsetPath, tdataPath string) error {
	if db.Wpca == nil {
		return ErrNotTrained
	}

	if db.ModelID == "" {
		db.ModelID = uuid.NewString()
		db.TrainedAt = time.Now().UTC()
	}

	desc := descriptor{
		ModelID:       db.ModelID,
		TrainedAt:     db.TrainedAt,
		NumClasses:    db.NumClasses,
		NumImages:     db.NumImages,
		NumDimensions: db.NumDimensions,
		LDA:           db.Wlda != nil,
		ICA:           db.Wica != nil,
		Labels:        db.Labels,
	}
	for _, e := range db.Entries {
		desc.Entries = append(desc.Entries, descriptorEntry{File: e.File, Class: e.Class})
	}

	out, err := yaml.Marshal(&desc)
	if err != nil {
		return fmt.Errorf("failed to marshal training set descriptor: %w", err)
	}
	if err := os.WriteFile(tsetPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write training set descriptor: %w", err)
	}

	f, err := os.Create(tdataPath)
	if err != nil {
		return fmt.Errorf("failed to create training data file: %w", err)
	}
	defer f.Close()

	if err := db.writeData(f); err != nil {
		return fmt.Errorf("failed to write training data: %w", err)
	}
	return f.Close()
}

func (db *Database) writeData(w io.Writer) error {
	if _, err := w.Write(dataMagic[:]); err != nil {
		return err
	}
	flags := uint8(0)
	if db.Wlda != nil {
		flags |= flagLDA
	}
	if db.Wica != nil {
		flags |= flagICA
	}
	if _, err := w.Write([]byte{dataVersion, flags}); err != nil {
		return err
	}

	if _, err := db.MeanFace.MarshalBinaryTo(w); err != nil {
		return err
	}
	matrices := []*mat.Dense{db.Wpca, db.Ppca}
	if db.Wlda != nil {
		matrices = append(matrices, db.Wlda, db.Plda)
	}
	if db.Wica != nil {
		matrices = append(matrices, db.Wica, db.Pica)
	}
	for _, m := range matrices {
		if _, err := m.MarshalBinaryTo(w); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the artifact pair and reconstructs a database. Any mismatch
// between the descriptor's declared counts and the dimensions found in the
// data blob aborts the load; nothing is returned on failure, so a caller's
// existing database is never partially overwritten.
func Load(tsetPath, tdataPath string) (*Database, error) {
	raw, err := os.ReadFile(tsetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read training set descriptor: %w", err)
	}
	var desc descriptor
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	if err := desc.validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(tdataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open training data: %w", err)
	}
	defer f.Close()

	db, err := readData(f, &desc)
	if err != nil {
		return nil, err
	}

	db.ModelID = desc.ModelID
	db.TrainedAt = desc.TrainedAt
	db.NumClasses = desc.NumClasses
	db.NumImages = desc.NumImages
	db.NumDimensions = desc.NumDimensions
	db.Labels = desc.Labels
	for _, e := range desc.Entries {
		db.Entries = append(db.Entries, imageset.Entry{
			Label: desc.Labels[e.Class],
			Class: e.Class,
			File:  e.File,
			// Raw pixel data is not persisted; recognition only needs
			// the stored projections.
		})
	}
	return db, nil
}

func (d *descriptor) validate() error {
	if d.NumClasses < 1 || d.NumImages < d.NumClasses || d.NumDimensions < 1 {
		return fmt.Errorf("%w: implausible counts (classes=%d images=%d dimensions=%d)",
			ErrBadArtifact, d.NumClasses, d.NumImages, d.NumDimensions)
	}
	if len(d.Labels) != d.NumClasses {
		return fmt.Errorf("%w: %d labels for %d classes", ErrArtifactMismatch, len(d.Labels), d.NumClasses)
	}
	if len(d.Entries) != d.NumImages {
		return fmt.Errorf("%w: %d entries for %d images", ErrArtifactMismatch, len(d.Entries), d.NumImages)
	}
	for i, e := range d.Entries {
		if e.Class < 0 || e.Class >= d.NumClasses {
			return fmt.Errorf("%w: entry %d has class %d out of range", ErrArtifactMismatch, i, e.Class)
		}
	}
	return nil
}

func readData(r io.Reader, desc *descriptor) (*Database, error) {
	var header [10]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrBadArtifact)
	}
	if [8]byte(header[:8]) != dataMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadArtifact)
	}
	if header[8] != dataVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadArtifact, header[8])
	}
	flags := header[9]
	if (flags&flagLDA != 0) != desc.LDA || (flags&flagICA != 0) != desc.ICA {
		return nil, fmt.Errorf("%w: subspace flags disagree", ErrArtifactMismatch)
	}

	db := &Database{}

	db.MeanFace = new(mat.VecDense)
	if _, err := db.MeanFace.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("%w: mean face: %v", ErrBadArtifact, err)
	}
	if db.MeanFace.Len() != desc.NumDimensions {
		return nil, fmt.Errorf("%w: mean face has %d dimensions, descriptor declares %d",
			ErrArtifactMismatch, db.MeanFace.Len(), desc.NumDimensions)
	}

	readMatrix := func(name string) (*mat.Dense, error) {
		m := new(mat.Dense)
		if _, err := m.UnmarshalBinaryFrom(r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadArtifact, name, err)
		}
		return m, nil
	}
	var err error
	if db.Wpca, err = readMatrix("PCA basis"); err != nil {
		return nil, err
	}
	if db.Ppca, err = readMatrix("PCA projections"); err != nil {
		return nil, err
	}

	rank, cols := db.Wpca.Dims()
	if cols != desc.NumDimensions {
		return nil, fmt.Errorf("%w: PCA basis spans %d dimensions, descriptor declares %d",
			ErrArtifactMismatch, cols, desc.NumDimensions)
	}
	if err := checkProjections(db.Ppca, rank, desc.NumImages, "PCA"); err != nil {
		return nil, err
	}

	if desc.LDA {
		if db.Wlda, err = readMatrix("LDA basis"); err != nil {
			return nil, err
		}
		if db.Plda, err = readMatrix("LDA projections"); err != nil {
			return nil, err
		}
		m, k := db.Wlda.Dims()
		if k != rank {
			return nil, fmt.Errorf("%w: LDA basis spans %d PCA dimensions, expected %d", ErrArtifactMismatch, k, rank)
		}
		if err := checkProjections(db.Plda, m, desc.NumImages, "LDA"); err != nil {
			return nil, err
		}
	}

	if desc.ICA {
		if db.Wica, err = readMatrix("ICA basis"); err != nil {
			return nil, err
		}
		if db.Pica, err = readMatrix("ICA projections"); err != nil {
			return nil, err
		}
		m, k := db.Wica.Dims()
		if k != rank {
			return nil, fmt.Errorf("%w: ICA basis spans %d PCA dimensions, expected %d", ErrArtifactMismatch, k, rank)
		}
		if err := checkProjections(db.Pica, m, desc.NumImages, "ICA"); err != nil {
			return nil, err
		}
	}

	return db, nil
}

func checkProjections(p *mat.Dense, wantRows, wantCols int, space string) error {
	r, c := p.Dims()
	if r != wantRows || c != wantCols {
		return fmt.Errorf("%w: %s projections are %dx%d, expected %dx%d",
			ErrArtifactMismatch, space, r, c, wantRows, wantCols)
	}
	return nil
}
