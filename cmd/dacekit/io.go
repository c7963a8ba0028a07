package main

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"dacekit/internal/dataset"
)

// readData loads a CSV file and splits it into design sites (the first
// inputs columns) and responses.
func readData(path string, inputs int) (S, Y *mat.Dense, header []string, err error) {
	if path == "" {
		return nil, nil, nil, fmt.Errorf("no data file given")
	}
	tab, err := dataset.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	S, Y, err = tab.Split(inputs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return S, Y, tab.Header, nil
}

// writeTable writes ms side by side to path, or to stdout when path is empty.
func writeTable(path string, header []string, ms ...mat.Matrix) error {
	if path == "" {
		return dataset.Write(os.Stdout, header, ms...)
	}
	if err := dataset.WriteFile(path, header, ms...); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Results saved to: %s\n", path)
	return nil
}

// responseHeader returns the response column names of a data file, or
// generated names when the file had no header.
func responseHeader(header []string, inputs, outputs int) []string {
	if len(header) == inputs+outputs {
		return header[inputs:]
	}
	return dataset.Columns("y", outputs)
}

// siteHeader is the counterpart of responseHeader for the input columns.
func siteHeader(header []string, inputs, outputs int) []string {
	if len(header) == inputs+outputs {
		return append([]string(nil), header[:inputs]...)
	}
	return dataset.Columns("x", inputs)
}
