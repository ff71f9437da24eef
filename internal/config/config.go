package config

import (
	"os"
	"strconv"
)

type Config struct {
	Image      ImageConfig
	Subspace   SubspaceConfig
	Recognizer RecognizerConfig
	Server     ServerConfig
}

// ImageConfig controls how raw images are reduced to training vectors.
// Every image is resized to Width x Height before vectorization, so the
// vector length (and therefore the database dimensionality) is Width*Height.
type ImageConfig struct {
	Width  int // defaults to 92 (ORL face database geometry)
	Height int // defaults to 112
}

// SubspaceConfig carries the numeric knobs for PCA/LDA/ICA training.
// The tolerances are configuration rather than constants; ill-conditioned
// training sets sometimes need different values.
type SubspaceConfig struct {
	PCATolerance      float64 // eigenvalue floor, smaller eigenvalues are dropped
	LDARegularization float64 // diagonal loading applied when within-class scatter is singular
	ICATolerance      float64 // fixed-point convergence tolerance
	ICAMaxIter        int     // hard cap on fixed-point iterations per component
	ICASeed           int64   // seed for component initialization, fixed seed = reproducible basis
}

type RecognizerConfig struct {
	Metric string // distance metric name, "euclidean" or "cosine"
}

type ServerConfig struct {
	Host string
	Port int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envInt64 reads an environment variable as an int64. Unlike envInt it
// allows zero and negative values (seeds are arbitrary).
func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Image: ImageConfig{
			Width:  envInt("EIGENFACES_IMAGE_WIDTH", 92),
			Height: envInt("EIGENFACES_IMAGE_HEIGHT", 112),
		},
		Subspace: SubspaceConfig{
			PCATolerance:      envFloat("EIGENFACES_PCA_TOLERANCE", 1e-8),
			LDARegularization: envFloat("EIGENFACES_LDA_REGULARIZATION", 1e-6),
			ICATolerance:      envFloat("EIGENFACES_ICA_TOLERANCE", 1e-4),
			ICAMaxIter:        envInt("EIGENFACES_ICA_MAX_ITER", 200),
			ICASeed:           envInt64("EIGENFACES_ICA_SEED", 1),
		},
		Recognizer: RecognizerConfig{
			Metric: envStr("EIGENFACES_METRIC", "euclidean"),
		},
		Server: ServerConfig{
			Host: envStr("EIGENFACES_HOST", "0.0.0.0"),
			Port: envInt("EIGENFACES_PORT", 8080),
		},
	}
}
