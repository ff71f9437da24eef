package web

import (
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/kozaktomas/eigenfaces/internal/facedb"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
)

// maxUploadBytes caps recognize/neighbors uploads.
const maxUploadBytes = 16 << 20

type modelResponse struct {
	ModelID       string   `json:"model_id"`
	TrainedAt     string   `json:"trained_at,omitempty"`
	NumClasses    int      `json:"num_classes"`
	NumImages     int      `json:"num_images"`
	NumDimensions int      `json:"num_dimensions"`
	Space         string   `json:"space"`
	Metric        string   `json:"metric"`
	Labels        []string `json:"labels"`
}

type recognizeResponse struct {
	Label    string  `json:"label"`
	Class    int     `json:"class"`
	Distance float64 `json:"distance"`
	Space    string  `json:"space"`
}

type neighborsResponse struct {
	Neighbors []neighborResponse `json:"neighbors"`
}

type neighborResponse struct {
	Label    string  `json:"label"`
	File     string  `json:"file"`
	Distance float64 `json:"distance"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	resp := modelResponse{
		ModelID:       s.db.ModelID,
		NumClasses:    s.db.NumClasses,
		NumImages:     s.db.NumImages,
		NumDimensions: s.db.NumDimensions,
		Space:         s.db.Space().String(),
		Metric:        s.metric.Name(),
		Labels:        s.db.Labels,
	}
	if !s.db.TrainedAt.IsZero() {
		resp.TrainedAt = s.db.TrainedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	vec, ok := s.readImage(w, r)
	if !ok {
		return
	}

	match, err := s.db.Recognize(vec, s.metric)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, facedb.ErrDimensionMismatch) || errors.Is(err, facedb.ErrNotTrained) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, recognizeResponse{
		Label:    match.Label,
		Class:    match.Class,
		Distance: match.Distance,
		Space:    match.Space.String(),
	})
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	vec, ok := s.readImage(w, r)
	if !ok {
		return
	}

	k := 5
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			k = n
		}
	}

	neighbors, err := s.index.Search(vec, k)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	resp := neighborsResponse{Neighbors: make([]neighborResponse, 0, len(neighbors))}
	for _, n := range neighbors {
		resp.Neighbors = append(resp.Neighbors, neighborResponse{
			Label:    n.Label,
			File:     n.File,
			Distance: n.Distance,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// readImage pulls the uploaded "image" file from a multipart request and
// vectorizes it at the database's training geometry. Writes the error
// response itself when the upload is unusable.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (vec *mat.VecDense, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing 'image' upload"})
		return nil, false
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to decode image"})
		return nil, false
	}

	return imageset.Vectorize(img, s.imgCfg), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
