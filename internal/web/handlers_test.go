package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/eigenfaces/internal/config"
	"github.com/kozaktomas/eigenfaces/internal/facedb"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
)

var testImgCfg = imageset.Config{Width: 8, Height: 8}

func encodeFace(t *testing.T, class, sample int) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			v := 50*class + 5*sample + x%13
			if v > 255 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func testServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	for class, label := range []string{"alice", "bob"} {
		if err := os.Mkdir(filepath.Join(dir, label), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		for s := range 3 {
			path := filepath.Join(dir, label, "face"+string(rune('a'+s))+".png")
			if err := os.WriteFile(path, encodeFace(t, class, s), 0o644); err != nil {
				t.Fatalf("write failed: %v", err)
			}
		}
	}

	db, err := facedb.Train(dir, facedb.TrainOptions{
		Image: testImgCfg,
		Subspace: config.SubspaceConfig{
			PCATolerance:      1e-8,
			LDARegularization: 1e-6,
			ICATolerance:      1e-4,
			ICAMaxIter:        200,
			ICASeed:           1,
		},
	})
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	s, err := NewServer(db, facedb.Euclidean{}, testImgCfg, "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("server setup failed: %v", err)
	}
	return s
}

func uploadRequest(t *testing.T, target string, imageData []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "query.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(imageData); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleModel(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/model", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp modelResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.NumClasses != 2 || resp.NumImages != 6 || resp.NumDimensions != 64 {
		t.Errorf("unexpected model counts: %+v", resp)
	}
	if resp.Space != "pca" {
		t.Errorf("expected space 'pca', got '%s'", resp.Space)
	}
}

func TestHandleRecognize(t *testing.T) {
	s := testServer(t)

	req := uploadRequest(t, "/api/recognize", encodeFace(t, 1, 0))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp recognizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Label != "bob" {
		t.Errorf("expected label 'bob', got '%s'", resp.Label)
	}
}

func TestHandleRecognize_MissingUpload(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/recognize", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleNeighbors(t *testing.T) {
	s := testServer(t)

	req := uploadRequest(t, "/api/neighbors?k=3", encodeFace(t, 0, 0))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp neighborsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(resp.Neighbors) == 0 {
		t.Fatal("expected at least one neighbor")
	}
	if resp.Neighbors[0].Label != "alice" {
		t.Errorf("expected nearest neighbor 'alice', got '%s'", resp.Neighbors[0].Label)
	}
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
