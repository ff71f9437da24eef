// Package imageset loads labeled face images from disk and reduces them to
// fixed-length column vectors suitable for subspace training. A training
// directory contains one subdirectory per person; the subdirectory name is
// the class label and every image file inside it is one sample of that class.
package imageset

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
)

// Config controls the geometry every image is normalized to before
// vectorization. Vector length is Width*Height.
type Config struct {
	Width  int
	Height int
}

// Entry is one labeled training sample: a class label, its dense class
// index (0..numClasses-1 in label sort order), the source file, and the
// image reduced to a column vector of grayscale intensities.
type Entry struct {
	Label string
	Class int
	File  string
	Data  *mat.VecDense
}

// Load enumerates path's subdirectories as class labels (sorted, so class
// indices are stable across runs) and loads every regular file inside them
// as a sample of that class. Returns the entries in load order together
// with the ordered label list. onImage, when non-nil, is called once per
// loaded image (progress reporting).
func Load(path string, cfg Config, onImage func()) ([]Entry, []string, error) {
	dirs, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read training directory %s: %w", path, err)
	}

	var labels []string
	for _, d := range dirs {
		if d.IsDir() {
			labels = append(labels, d.Name())
		}
	}
	sort.Strings(labels)

	var entries []Entry
	for class, label := range labels {
		classDir := filepath.Join(path, label)
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read class directory %s: %w", classDir, err)
		}

		var names []string
		for _, f := range files {
			if !f.IsDir() {
				names = append(names, f.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			file := filepath.Join(classDir, name)
			vec, err := LoadImage(file, cfg)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load %s: %w", file, err)
			}
			entries = append(entries, Entry{
				Label: label,
				Class: class,
				File:  file,
				Data:  vec,
			})
			if onImage != nil {
				onImage()
			}
		}
	}

	return entries, labels, nil
}

// LoadImage decodes a single image file and reduces it to a column vector:
// resize to cfg.Width x cfg.Height, convert to grayscale, flatten row by row.
func LoadImage(path string, cfg Config) (*mat.VecDense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return Vectorize(img, cfg), nil
}

// Vectorize converts an already-decoded image into a column vector of
// grayscale intensities at the configured geometry.
func Vectorize(img image.Image, cfg Config) *mat.VecDense {
	resized := resizeImage(img, cfg.Width, cfg.Height)

	data := make([]float64, cfg.Width*cfg.Height)
	for y := range cfg.Height {
		for x := range cfg.Width {
			r, g, b, _ := resized.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			data[y*cfg.Width+x] = luma
		}
	}

	return mat.NewVecDense(len(data), data)
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
