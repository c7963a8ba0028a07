// Package stl turns sampled response surfaces into triangle meshes and writes
// them as binary STL files.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Triangle is one facet of a mesh.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// Heightfield triangulates a surface z = f(x, y) sampled on a regular grid.
type Heightfield struct {
	values        []float64
	width, height int
	lower, upper  [2]float64

	xScale, yScale, zScale float32
}

// NewHeightfield creates a heightfield from width×height samples stored in
// row-major order. Row 0 lies at upper[1] and the last row at lower[1]; column
// 0 lies at lower[0].
func NewHeightfield(values []float64, width, height int, lower, upper [2]float64) (*Heightfield, error) {
	if width < 2 || height < 2 {
		return nil, fmt.Errorf("heightfield needs at least 2x2 samples, got %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("got %d samples for a %dx%d grid", len(values), width, height)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("heightfield samples must be finite")
		}
	}
	return &Heightfield{
		values: values,
		width:  width,
		height: height,
		lower:  lower,
		upper:  upper,
		xScale: 1,
		yScale: 1,
		zScale: 1,
	}, nil
}

// SetScale stretches the mesh along each axis.
func (h *Heightfield) SetScale(x, y, z float32) {
	h.xScale, h.yScale, h.zScale = x, y, z
}

func (h *Heightfield) vertex(px, py int) [3]float32 {
	x := h.lower[0] + (h.upper[0]-h.lower[0])*float64(px)/float64(h.width-1)
	y := h.upper[1] - (h.upper[1]-h.lower[1])*float64(py)/float64(h.height-1)
	z := h.values[py*h.width+px]
	return [3]float32{float32(x) * h.xScale, float32(y) * h.yScale, float32(z) * h.zScale}
}

// GenerateTriangles splits every grid cell into two triangles wound
// counterclockwise when seen from above.
func (h *Heightfield) GenerateTriangles() []Triangle {
	triangles := make([]Triangle, 0, 2*(h.width-1)*(h.height-1))
	for py := 0; py < h.height-1; py++ {
		for px := 0; px < h.width-1; px++ {
			topLeft := h.vertex(px, py)
			topRight := h.vertex(px+1, py)
			bottomLeft := h.vertex(px, py+1)
			bottomRight := h.vertex(px+1, py+1)

			triangles = append(triangles,
				newTriangle(bottomLeft, bottomRight, topRight),
				newTriangle(bottomLeft, topRight, topLeft))
		}
	}
	return triangles
}

func newTriangle(a, b, c [3]float32) Triangle {
	return Triangle{Normal: normal(a, b, c), Vertex1: a, Vertex2: b, Vertex3: c}
}

// normal returns the unit normal of the triangle abc, or zero for a
// degenerate triangle.
func normal(a, b, c [3]float32) [3]float32 {
	u := [3]float64{float64(b[0] - a[0]), float64(b[1] - a[1]), float64(b[2] - a[2])}
	v := [3]float64{float64(c[0] - a[0]), float64(c[1] - a[1]), float64(c[2] - a[2])}
	n := [3]float64{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
	length := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	if length == 0 {
		return [3]float32{}
	}
	return [3]float32{float32(n[0] / length), float32(n[1] / length), float32(n[2] / length)}
}

// SaveToSTL writes triangles to filename in binary STL format: an 80 byte
// header, a little-endian triangle count and 50 bytes per triangle.
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	var header [80]byte
	copy(header[:], "dacekit surface")
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}
	for _, t := range triangles {
		for _, v := range [][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		// attribute byte count
		if err := binary.Write(w, binary.LittleEndian, uint16(0)); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}
