package train

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
)

// Augmenter applies random geometric transforms to training images.
// Pixels mapped from outside the source take the nearest edge value.
type Augmenter struct {
	// RotationDeg is the maximum absolute rotation in degrees.
	RotationDeg float64
	// WidthShift and HeightShift are maximum shifts as a fraction of the
	// image size.
	WidthShift  float64
	HeightShift float64
	// FlipH mirrors the image horizontally with probability 0.5.
	FlipH bool
}

// DefaultAugmenter is rotation ±20°, shifts ±20% and random horizontal flip.
func DefaultAugmenter() Augmenter {
	return Augmenter{RotationDeg: 20, WidthShift: 0.2, HeightShift: 0.2, FlipH: true}
}

// Transform is one concrete draw of the augmentation parameters.
type Transform struct {
	Theta  float64 // radians
	Tx, Ty float64 // pixels
	Flip   bool
}

// Sample draws transform parameters for a w×h image.
func (a Augmenter) Sample(rng *rand.Rand, w, h int) Transform {
	var t Transform
	if a.RotationDeg > 0 {
		t.Theta = (rng.Float64()*2 - 1) * a.RotationDeg * math.Pi / 180
	}
	if a.WidthShift > 0 {
		t.Tx = (rng.Float64()*2 - 1) * a.WidthShift * float64(w)
	}
	if a.HeightShift > 0 {
		t.Ty = (rng.Float64()*2 - 1) * a.HeightShift * float64(h)
	}
	if a.FlipH {
		t.Flip = rng.Float64() < 0.5
	}
	return t
}

// Apply resizes img to size×size and applies one random transform.
func (a Augmenter) Apply(img image.Image, size int, rng *rand.Rand) *image.NRGBA {
	src := imaging.Resize(img, size, size, imaging.NearestNeighbor)
	return ApplyTransform(src, a.Sample(rng, size, size))
}

// ApplyTransform rotates src about its centre by t.Theta, shifts it by
// (t.Tx, t.Ty) and optionally mirrors it. Output has the size of src.
func ApplyTransform(src *image.NRGBA, t Transform) *image.NRGBA {
	out := src
	if t.Theta != 0 || t.Tx != 0 || t.Ty != 0 {
		out = affine(src, t.Theta, t.Tx, t.Ty)
	}
	if t.Flip {
		out = imaging.FlipH(out)
	}
	return out
}

// affine maps every output pixel back into src through the inverse
// rotation and shift, sampling bilinearly with edge clamping.
func affine(src *image.NRGBA, theta, tx, ty float64) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	cx, cy := float64(w-1)/2, float64(h-1)/2
	cos, sin := math.Cos(theta), math.Sin(theta)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx-tx, float64(y)-cy-ty
			sx := cos*dx + sin*dy + cx
			sy := -sin*dx + cos*dy + cy
			o := y*dst.Stride + x*4
			bilinear(src, sx, sy, dst.Pix[o:o+4])
		}
	}
	return dst
}

func bilinear(src *image.NRGBA, x, y float64, px []uint8) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	x = clamp(x, 0, float64(w-1))
	y = clamp(y, 0, float64(h-1))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)
	at := func(xx, yy, c int) float64 {
		return float64(src.Pix[yy*src.Stride+xx*4+c])
	}
	for c := 0; c < 4; c++ {
		top := at(x0, y0, c)*(1-fx) + at(x1, y0, c)*fx
		bot := at(x0, y1, c)*(1-fx) + at(x1, y1, c)*fx
		px[c] = uint8(math.Round(top*(1-fy) + bot*fy))
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
