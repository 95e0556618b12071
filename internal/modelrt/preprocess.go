package modelrt

import (
	"fmt"
	"image"

	"github.com/kunsheng-liu/percept-engine/internal/types"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
)

// Variant selects which of the two preprocessing rules from spec.md §4.2
// a Model applies.
type Variant int

const (
	// VariantClassification resizes, converts to RGB, scales to [0,1],
	// and additionally subtracts the channel mean and divides by the
	// channel std before CHW reorder.
	VariantClassification Variant = iota
	// VariantDetection does the same resize/RGB/scale but skips
	// mean/std normalization.
	VariantDetection
)

// classMean and classStd are the channel-wise normalization constants for
// VariantClassification, in RGB order (spec.md §4.2).
var classMean = [3]float32{0.485, 0.456, 0.406}
var classStd = [3]float32{0.229, 0.224, 0.225}

// Preprocess implements the variant-specific raw-image-to-tensor
// transform: cubic resize to the model's (W,H), BGR->RGB, scale to
// [0,1], optional mean/std normalization, CHW reorder, flatten.
func (m *Model) Preprocess(img types.Image) ([]float32, error) {
	if img.Width == 0 || img.Height == 0 {
		return nil, types.Newf(types.KindInputShape, "modelrt.preprocess", fmt.Errorf("empty image"))
	}

	src, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Pix)
	if err != nil {
		return nil, types.Newf(types.KindRuntime, "modelrt.preprocess.decode", err)
	}
	defer src.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(m.Shape.Width, m.Shape.Height), 0, 0, gocv.InterpolationCubic)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	pix := rgb.ToBytes()
	w, h := m.Shape.Width, m.Shape.Height
	want := w * h * types.Channels
	if len(pix) != want {
		return nil, types.Newf(types.KindRuntime, "modelrt.preprocess",
			fmt.Errorf("resized byte count %d != expected %d", len(pix), want))
	}

	hwc := make([]float32, want)
	for i, b := range pix {
		hwc[i] = float32(b) / 255.0
	}

	chw := make([]float32, want)
	plane := w * h
	for c := 0; c < types.Channels; c++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				chw[c*plane+y*w+x] = hwc[(y*w+x)*types.Channels+c]
			}
		}
	}

	if m.variant == VariantClassification {
		scratch := make([]float64, plane)
		for c := 0; c < types.Channels; c++ {
			channel := chw[c*plane : (c+1)*plane]
			for i, v := range channel {
				scratch[i] = float64(v)
			}
			floats.AddConst(-float64(classMean[c]), scratch)
			floats.Scale(1.0/float64(classStd[c]), scratch)
			for i, v := range scratch {
				channel[i] = float32(v)
			}
		}
	}

	return chw, nil
}
