package vision

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Model input geometry. Tensors are laid out NHWC.
const (
	InputSize = 224
	Channels  = 3
)

// Tensor is a dense float32 array with its shape.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Len returns the number of elements implied by Shape.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return int(n)
}

// Preprocess resizes img to the model input resolution and normalises it.
func Preprocess(img image.Image) Tensor {
	return PreprocessSize(img, InputSize)
}

// PreprocessSize stretches img to size×size (aspect ratio is not kept),
// scales each RGB channel to [0,1] and adds a batch axis of 1. Alpha is
// dropped; grayscale and paletted images expand to three channels.
func PreprocessSize(img image.Image, size int) Tensor {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bicubic)
	// NRGBA keeps the straight colour values, which is what dropping the
	// alpha channel of an RGBA array means.
	px := imaging.Clone(resized)

	data := make([]float32, size*size*Channels)
	for y := 0; y < size; y++ {
		row := px.Pix[y*px.Stride : y*px.Stride+size*4]
		for x := 0; x < size; x++ {
			o := (y*size + x) * Channels
			data[o] = float32(row[x*4]) / 255.0
			data[o+1] = float32(row[x*4+1]) / 255.0
			data[o+2] = float32(row[x*4+2]) / 255.0
		}
	}
	return Tensor{
		Shape: []int64{1, int64(size), int64(size), Channels},
		Data:  data,
	}
}
