package stl

import (
	"encoding/binary"
	"math"
	"os"
	"testing"
)

// paraboloid samples z = x² + y² on a size×size grid over [-1,1]²
func paraboloid(size int) []float64 {
	data := make([]float64, size*size)
	for py := 0; py < size; py++ {
		for px := 0; px < size; px++ {
			x := -1 + 2*float64(px)/float64(size-1)
			y := 1 - 2*float64(py)/float64(size-1)
			data[py*size+px] = x*x + y*y
		}
	}
	return data
}

// TestGenerateTriangles verifies the triangle count and that normals face up
func TestGenerateTriangles(t *testing.T) {
	size := 10
	hf, err := NewHeightfield(paraboloid(size), size, size, [2]float64{-1, -1}, [2]float64{1, 1})
	if err != nil {
		t.Fatalf("Failed to create heightfield: %v", err)
	}

	triangles := hf.GenerateTriangles()
	if want := 2 * (size - 1) * (size - 1); len(triangles) != want {
		t.Fatalf("Expected %d triangles, got %d", want, len(triangles))
	}

	for i, triangle := range triangles {
		if triangle.Normal[2] <= 0 {
			t.Errorf("Triangle %d normal points down: %v", i, triangle.Normal)
			break
		}
		n := triangle.Normal
		length := math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]))
		if math.Abs(length-1) > 1e-5 {
			t.Errorf("Triangle %d normal not unit length: %f", i, length)
			break
		}
	}
}

// TestVertexPlacement verifies that the grid corners map to the box corners
// and that vertices carry the sampled heights
func TestVertexPlacement(t *testing.T) {
	values := []float64{
		1, 2,
		3, 4,
	}
	hf, err := NewHeightfield(values, 2, 2, [2]float64{0, 10}, [2]float64{5, 20})
	if err != nil {
		t.Fatalf("Failed to create heightfield: %v", err)
	}

	triangles := hf.GenerateTriangles()
	if len(triangles) != 2 {
		t.Fatalf("Expected 2 triangles, got %d", len(triangles))
	}

	// first triangle: bottom left, bottom right, top right
	want := [3][3]float32{{0, 10, 3}, {5, 10, 4}, {5, 20, 2}}
	got := [3][3]float32{triangles[0].Vertex1, triangles[0].Vertex2, triangles[0].Vertex3}
	if got != want {
		t.Errorf("Expected vertices %v, got %v", want, got)
	}
}

// TestSetScale verifies that the scaling functionality works
func TestSetScale(t *testing.T) {
	values := []float64{
		1, 1,
		1, 1,
	}
	hf, err := NewHeightfield(values, 2, 2, [2]float64{0, 0}, [2]float64{1, 1})
	if err != nil {
		t.Fatalf("Failed to create heightfield: %v", err)
	}

	xScale, yScale, zScale := float32(2.5), float32(1.5), float32(3.0)
	hf.SetScale(xScale, yScale, zScale)

	triangle := hf.GenerateTriangles()[0]
	// bottom right corner is (1, 0, 1) before scaling
	want := [3]float32{xScale, 0, zScale}
	if triangle.Vertex2 != want {
		t.Errorf("Expected scaled vertex %v, got %v", want, triangle.Vertex2)
	}
	if triangle.Normal != [3]float32{0, 0, 1} {
		t.Errorf("Expected flat surface normal (0,0,1), got %v", triangle.Normal)
	}
}

// TestNewHeightfieldErrors verifies input validation
func TestNewHeightfieldErrors(t *testing.T) {
	box0, box1 := [2]float64{0, 0}, [2]float64{1, 1}
	if _, err := NewHeightfield([]float64{1, 2}, 2, 1, box0, box1); err == nil {
		t.Error("Expected error for a single row, got nil")
	}
	if _, err := NewHeightfield([]float64{1, 2, 3}, 2, 2, box0, box1); err == nil {
		t.Error("Expected error for wrong sample count, got nil")
	}
	if _, err := NewHeightfield([]float64{1, 2, 3, math.NaN()}, 2, 2, box0, box1); err == nil {
		t.Error("Expected error for NaN sample, got nil")
	}
}

// TestSaveToSTL verifies that the STL file can be written
func TestSaveToSTL(t *testing.T) {
	triangles := []Triangle{
		{
			Normal:  [3]float32{0, 0, 1},
			Vertex1: [3]float32{0, 0, 0},
			Vertex2: [3]float32{1, 0, 0},
			Vertex3: [3]float32{0, 1, 0},
		},
	}

	tmpFile, err := os.CreateTemp("", "test-*.stl")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	if err := SaveToSTL(tmpFile.Name(), triangles); err != nil {
		t.Fatalf("Failed to save STL: %v", err)
	}

	data, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}

	// STL header: 80 bytes
	// Number of triangles: 4 bytes
	// Triangle: 50 bytes (12 bytes per vertex, 12 bytes per normal, 2 bytes attribute)
	if want := 80 + 4 + 50; len(data) != want {
		t.Fatalf("Expected %d bytes, got %d", want, len(data))
	}
	if n := binary.LittleEndian.Uint32(data[80:84]); n != 1 {
		t.Errorf("Expected triangle count 1, got %d", n)
	}
	// x of the second vertex
	if x := math.Float32frombits(binary.LittleEndian.Uint32(data[84+24 : 84+28])); x != 1 {
		t.Errorf("Expected vertex x 1, got %f", x)
	}
}

// BenchmarkGenerateTriangles benchmarks the triangulation of a large surface
func BenchmarkGenerateTriangles(b *testing.B) {
	size := 256
	hf, err := NewHeightfield(paraboloid(size), size, size, [2]float64{-1, -1}, [2]float64{1, 1})
	if err != nil {
		b.Fatalf("Failed to create heightfield: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hf.GenerateTriangles()
	}
}
