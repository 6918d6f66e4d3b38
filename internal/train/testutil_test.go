package train

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"kartd/internal/vision"
)

var testLabels = []string{"Cheep_Charge", "B_Dasher", "Flame_Flyer"}

// colorBackbone returns the per-channel mean of the tensor, so solid red,
// green and blue images are linearly separable.
type colorBackbone struct {
	calls  int
	closed bool
}

func (b *colorBackbone) Extract(_ context.Context, t vision.Tensor) ([]float32, error) {
	b.calls++
	var sum [3]float64
	for i, v := range t.Data {
		sum[i%3] += float64(v)
	}
	n := float64(len(t.Data) / 3)
	return []float32{float32(sum[0] / n), float32(sum[1] / n), float32(sum[2] / n)}, nil
}

func (b *colorBackbone) Dim() int     { return 3 }
func (b *colorBackbone) Close() error { b.closed = true; return nil }

// constBackbone returns the same features for every image.
type constBackbone struct{}

func (constBackbone) Extract(context.Context, vision.Tensor) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}
func (constBackbone) Dim() int     { return 2 }
func (constBackbone) Close() error { return nil }

var classColors = []color.NRGBA{
	{R: 230, G: 20, B: 20, A: 255},
	{R: 20, G: 230, B: 20, A: 255},
	{R: 20, G: 20, B: 230, A: 255},
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

// makeDataset writes perClass solid-colour images for every label.
func makeDataset(t *testing.T, perClass int) string {
	t.Helper()
	root := t.TempDir()
	for ci, label := range testLabels {
		dir := filepath.Join(root, label)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < perClass; i++ {
			writePNG(t, filepath.Join(dir, filepath.Base(label)+"_"+string(rune('a'+i))+".png"), 16, 12, classColors[ci])
		}
	}
	return root
}
