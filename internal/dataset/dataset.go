// Package dataset reads and writes numeric tables as CSV files. The command
// line tools use it to exchange design sites, responses and predictions.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Table is a numeric matrix with optional column names.
type Table struct {
	// Header holds the column names, or nil when the file had none.
	Header []string
	Data   *mat.Dense
}

// Read parses CSV from r. Lines starting with '#' are skipped. A first record
// that does not parse as numbers is taken as the header.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var (
		header []string
		values []float64
		cols   int
		rows   int
	)
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv: %w", err)
		}
		row, perr := parseRecord(record)
		if perr != nil {
			if rows == 0 && header == nil {
				header = trim(record)
				cols = len(record)
				continue
			}
			return nil, fmt.Errorf("record %d: %w", line, perr)
		}
		if cols == 0 {
			cols = len(row)
		}
		if len(row) != cols {
			return nil, fmt.Errorf("record %d has %d fields, expected %d", line, len(row), cols)
		}
		values = append(values, row...)
		rows++
	}
	if rows == 0 {
		return nil, errors.New("csv holds no data rows")
	}
	return &Table{Header: header, Data: mat.NewDense(rows, cols, values)}, nil
}

// ReadFile reads a table from the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Split returns the first inputs columns as design sites and the remaining
// columns as responses.
func (t *Table) Split(inputs int) (S, Y *mat.Dense, err error) {
	rows, cols := t.Data.Dims()
	if inputs < 1 || inputs >= cols {
		return nil, nil, fmt.Errorf("cannot split %d columns into %d inputs and at least one response", cols, inputs)
	}
	S = mat.DenseCopyOf(t.Data.Slice(0, rows, 0, inputs))
	Y = mat.DenseCopyOf(t.Data.Slice(0, rows, inputs, cols))
	return S, Y, nil
}

// Write writes the matrices side by side as CSV. All matrices must have the
// same number of rows. A nil header writes no header line.
func Write(w io.Writer, header []string, ms ...mat.Matrix) error {
	if len(ms) == 0 {
		return errors.New("nothing to write")
	}
	rows, _ := ms[0].Dims()
	total := 0
	for _, m := range ms {
		r, c := m.Dims()
		if r != rows {
			return fmt.Errorf("matrices have %d and %d rows", rows, r)
		}
		total += c
	}
	if header != nil && len(header) != total {
		return fmt.Errorf("header has %d names for %d columns", len(header), total)
	}

	cw := csv.NewWriter(w)
	if header != nil {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	record := make([]string, total)
	for i := 0; i < rows; i++ {
		k := 0
		for _, m := range ms {
			_, c := m.Dims()
			for j := 0; j < c; j++ {
				record[k] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
				k++
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the matrices to a CSV file at path.
func WriteFile(path string, header []string, ms ...mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, header, ms...); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// Columns returns names prefix0, prefix1, ... for n columns.
func Columns(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + strconv.Itoa(i)
	}
	return out
}

func parseRecord(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for j, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", j+1, err)
		}
		row[j] = v
	}
	return row, nil
}

func trim(record []string) []string {
	out := make([]string, len(record))
	for i, s := range record {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
