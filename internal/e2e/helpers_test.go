package e2e

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"kartd/internal/httpapi"
	"kartd/internal/model"
	"kartd/internal/predictor"
	"kartd/internal/vision"
	"kartd/pkg/types"
)

var kartColors = []color.NRGBA{
	{R: 230, G: 20, B: 20, A: 255},
	{R: 20, G: 230, B: 20, A: 255},
	{R: 20, G: 20, B: 230, A: 255},
}

// channelMeans stands in for the ONNX backbone: the features of an image
// are its mean red, green and blue.
type channelMeans struct{}

func (channelMeans) Extract(_ context.Context, t vision.Tensor) ([]float32, error) {
	var sum [3]float64
	for i, v := range t.Data {
		sum[i%3] += float64(v)
	}
	n := float64(len(t.Data) / 3)
	return []float32{float32(sum[0] / n), float32(sum[1] / n), float32(sum[2] / n)}, nil
}
func (channelMeans) Dim() int     { return 3 }
func (channelMeans) Close() error { return nil }

// headLoader opens a .kart artifact behind channelMeans.
func headLoader(path string) (model.Classifier, error) {
	art, err := model.ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	return model.NewHeadClassifier(channelMeans{}, art)
}

func solid(c color.Color, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// createDataset writes perClass solid-colour images under <dir>/<label>/.
func createDataset(t *testing.T, perClass int) string {
	t.Helper()
	dir := t.TempDir()
	for ci, label := range types.KartTypes {
		classDir := filepath.Join(dir, label)
		if err := os.MkdirAll(classDir, 0o755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < perClass; i++ {
			writeImage(t, filepath.Join(classDir, label+"_"+string(rune('0'+i))+".png"), solid(kartColors[ci], 20, 14))
		}
	}
	return dir
}

func newServer(t *testing.T, cfg predictor.Config) (*httptest.Server, *predictor.Predictor) {
	t.Helper()
	p := predictor.New(cfg)
	srv := httptest.NewServer(httpapi.NewMux(p))
	t.Cleanup(func() {
		srv.Close()
		_ = p.Close()
	})
	return srv, p
}

func b64Image(t *testing.T, img image.Image) string {
	t.Helper()
	s, err := vision.EncodePNGBase64(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return s
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
