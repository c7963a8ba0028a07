package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"dacekit/pkg/kriging"
	"dacekit/pkg/stl"
)

// Quantity selects what a slice image shows.
type Quantity int

const (
	// Value is the predicted response.
	Value Quantity = iota
	// MSE is the estimated mean squared error of the prediction.
	MSE
)

func (q Quantity) String() string {
	switch q {
	case Value:
		return "value"
	case MSE:
		return "mse"
	}
	return fmt.Sprintf("Quantity(%d)", int(q))
}

// ParseQuantity converts "value" or "mse" into a Quantity.
func ParseQuantity(name string) (Quantity, error) {
	switch strings.ToLower(name) {
	case "value", "y", "":
		return Value, nil
	case "mse":
		return MSE, nil
	}
	return 0, fmt.Errorf("unknown quantity %q (must be value or mse)", name)
}

// Predictor is the part of a fitted model the viewer needs.
type Predictor interface {
	Dim() int
	Outputs() int
	Predict(X mat.Matrix, opts ...kriging.PredictOption) (*kriging.Prediction, error)
}

// SliceParams describes a rectangular 2-D slice of the input space.
type SliceParams struct {
	// AxisX and AxisY are the input coordinates spanned by the image.
	AxisX, AxisY int

	// Lower and Upper bound the slice along AxisX and AxisY.
	Lower, Upper [2]float64

	// Base fixes the remaining coordinates. Nil fixes them at zero.
	Base []float64

	// Width and Height are the image size in pixels.
	Width, Height int

	// Output is the response column rendered.
	Output int
}

// Viewer renders slices of a fitted surrogate as grayscale images.
type Viewer struct {
	model  Predictor
	params SliceParams
}

// NewViewer creates a viewer for model.
//
// Parameters:
//   - model: fitted model to render
//   - params: slice geometry
//
// Returns:
//   - a new Viewer, or an error when params do not match the model
func NewViewer(model Predictor, params SliceParams) (*Viewer, error) {
	dim := model.Dim()
	p := params
	switch {
	case p.AxisX < 0 || p.AxisX >= dim || p.AxisY < 0 || p.AxisY >= dim:
		return nil, fmt.Errorf("axes %d and %d must lie in [0, %d)", p.AxisX, p.AxisY, dim)
	case p.AxisX == p.AxisY && dim > 1:
		return nil, fmt.Errorf("axes must differ")
	case p.Width < 2 || p.Height < 1:
		return nil, fmt.Errorf("image size %dx%d too small", p.Width, p.Height)
	case p.Output < 0 || p.Output >= model.Outputs():
		return nil, fmt.Errorf("output %d out of range [0, %d)", p.Output, model.Outputs())
	case p.Base != nil && len(p.Base) != dim:
		return nil, fmt.Errorf("base point has dimension %d, model has %d", len(p.Base), dim)
	case !(p.Lower[0] < p.Upper[0]) || (dim > 1 && !(p.Lower[1] < p.Upper[1])):
		return nil, fmt.Errorf("slice bounds must be increasing")
	}
	if p.Base == nil {
		p.Base = make([]float64, dim)
	} else {
		p.Base = append([]float64(nil), p.Base...)
	}
	return &Viewer{model: model, params: p}, nil
}

// Points returns the query points of the slice, one per pixel in row-major
// order. Row 0 is the top of the image, at the upper bound of AxisY.
func (v *Viewer) Points() *mat.Dense {
	p := v.params
	dim := len(p.Base)
	xs := floats.Span(make([]float64, p.Width), p.Lower[0], p.Upper[0])
	ys := []float64{p.Lower[1]}
	if p.Height > 1 {
		ys = floats.Span(make([]float64, p.Height), p.Upper[1], p.Lower[1])
	}
	X := mat.NewDense(p.Width*p.Height, dim, nil)
	row := make([]float64, dim)
	for py := 0; py < p.Height; py++ {
		for px := 0; px < p.Width; px++ {
			copy(row, p.Base)
			row[p.AxisX] = xs[px]
			if p.AxisY != p.AxisX {
				row[p.AxisY] = ys[py]
			}
			X.SetRow(py*p.Width+px, row)
		}
	}
	return X
}

// Sample evaluates q at every pixel of the slice and returns the values in
// row-major order.
func (v *Viewer) Sample(q Quantity) ([]float64, error) {
	pred, err := v.model.Predict(v.Points())
	if err != nil {
		return nil, err
	}
	src := pred.Values
	if q == MSE {
		src = pred.MSE
	}
	n, _ := src.Dims()
	out := make([]float64, n)
	mat.Col(out, v.params.Output, src)
	return out, nil
}

// ExtractSlice renders q over the slice as a 16-bit grayscale image, mapping
// the smallest sample to black and the largest to white.
func (v *Viewer) ExtractSlice(q Quantity) (image.Image, error) {
	data, err := v.Sample(q)
	if err != nil {
		return nil, err
	}
	lo, hi := floats.Min(data), floats.Max(data)
	span := hi - lo

	img := image.NewGray16(image.Rect(0, 0, v.params.Width, v.params.Height))
	for py := 0; py < v.params.Height; py++ {
		for px := 0; px < v.params.Width; px++ {
			level := 0.0
			if span > 0 {
				level = (data[py*v.params.Width+px] - lo) / span
			}
			value := uint16(math.Max(0, math.Min(65535, level*65535)))
			img.SetGray16(px, py, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// ExtractMesh samples q over the slice and triangulates it as a surface
// z = q(x, y). The slice needs at least two rows.
func (v *Viewer) ExtractMesh(q Quantity) ([]stl.Triangle, error) {
	data, err := v.Sample(q)
	if err != nil {
		return nil, err
	}
	hf, err := stl.NewHeightfield(data, v.params.Width, v.params.Height, v.params.Lower, v.params.Upper)
	if err != nil {
		return nil, err
	}
	return hf.GenerateTriangles(), nil
}

// SaveSlice writes img to filename. The format follows the extension: .png
// is written losslessly, anything else as JPEG.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return png.Encode(file, img)
	default:
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
}

// SaveSliceSequence renders q for every value in positions of the fixed
// coordinate axis and saves the images to outputDir as PNG files.
func (v *Viewer) SaveSliceSequence(q Quantity, axis int, positions []float64, outputDir string) error {
	if axis < 0 || axis >= len(v.params.Base) || axis == v.params.AxisX || axis == v.params.AxisY {
		return fmt.Errorf("invalid sweep axis %d", axis)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	base := v.params.Base
	defer func() { v.params.Base = base }()
	for i, pos := range positions {
		v.params.Base = append([]float64(nil), base...)
		v.params.Base[axis] = pos

		img, err := v.ExtractSlice(q)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_x%d_%03d.png", q, axis, i))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
