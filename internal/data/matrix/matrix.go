package matrix

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Matrix is a column-oriented, read-only feature table
type Matrix struct {
	names   []string
	columns map[string][]float64
	rows    int
}

// New builds a matrix from named columns of equal length
func New(names []string, columns [][]float64) (*Matrix, error) {
	if len(names) != len(columns) {
		return nil, fmt.Errorf("got %d names for %d columns", len(names), len(columns))
	}

	m := &Matrix{
		names:   make([]string, 0, len(names)),
		columns: make(map[string][]float64, len(names)),
	}
	for i, name := range names {
		if _, dup := m.columns[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		if i == 0 {
			m.rows = len(columns[i])
		} else if len(columns[i]) != m.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", name, len(columns[i]), m.rows)
		}
		m.names = append(m.names, name)
		m.columns[name] = columns[i]
	}
	return m, nil
}

// NumRows returns the number of samples
func (m *Matrix) NumRows() int { return m.rows }

// Column returns the values of a named feature
func (m *Matrix) Column(feature string) ([]float64, bool) {
	values, ok := m.columns[feature]
	return values, ok
}

// Names returns the column names in file order
func (m *Matrix) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Row returns one sample as a feature -> value map
func (m *Matrix) Row(i int) (map[string]float64, error) {
	if i < 0 || i >= m.rows {
		return nil, fmt.Errorf("row %d outside [0, %d)", i, m.rows)
	}
	row := make(map[string]float64, len(m.names))
	for _, name := range m.names {
		row[name] = m.columns[name][i]
	}
	return row, nil
}

// Select keeps only the named columns, in the given order
func (m *Matrix) Select(names []string) (*Matrix, error) {
	cols := make([][]float64, len(names))
	for i, name := range names {
		values, ok := m.columns[name]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		cols[i] = values
	}
	return New(names, cols)
}

// ReadCSV parses CSV data. Blank, "NaN" and "NA" cells load as NaN, which
// fails every split comparison.
func ReadCSV(r io.Reader) (*Matrix, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty feature matrix")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	columns := make([][]float64, len(header))
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		for j, cell := range record {
			value, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[j], err)
			}
			columns[j] = append(columns[j], value)
		}
	}

	return New(header, columns)
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}
