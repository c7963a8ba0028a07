package dataset

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestReadWithHeaderAndComments(t *testing.T) {
	in := "# sampled sites\nx0, x1, y\n0, 0.5, 1\n1, 1.5, -2e-3\n"
	tab, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"x0", "x1", "y"}, tab.Header)

	want := mat.NewDense(2, 3, []float64{0, 0.5, 1, 1, 1.5, -2e-3})
	assert.True(t, mat.Equal(want, tab.Data))
}

func TestReadWithoutHeader(t *testing.T) {
	tab, err := Read(strings.NewReader("1,2\n3,4\n"))
	require.NoError(t, err)
	assert.Nil(t, tab.Header)
	r, c := tab.Data.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"header only", "a,b\n"},
		{"bad number", "1,2\n3,x\n"},
		{"ragged", "1,2\n3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestSplit(t *testing.T) {
	tab := &Table{Data: mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})}
	S, Y, err := tab.Split(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, S.RawRowView(0))
	assert.Equal(t, []float64{6}, Y.RawRowView(1))

	_, _, err = tab.Split(3)
	assert.Error(t, err)
	_, _, err = tab.Split(0)
	assert.Error(t, err)
}

func TestWriteSideBySide(t *testing.T) {
	S := mat.NewDense(2, 1, []float64{0.25, 1})
	Y := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []string{"x0", "y0", "y1"}, S, Y))
	assert.Equal(t, "x0,y0,y1\n0.25,1,2\n1,3,4\n", buf.String())

	assert.Error(t, Write(&buf, []string{"x0"}, S, Y))
	assert.Error(t, Write(&buf, nil, S, mat.NewDense(3, 1, nil)))
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	m := mat.NewDense(3, 2, []float64{0.1, 1e-9, -3, 4.5, 1e12, 0})
	require.NoError(t, WriteFile(path, Columns("c", 2), m))

	tab, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1"}, tab.Header)
	assert.True(t, mat.Equal(m, tab.Data))
}
