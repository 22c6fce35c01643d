// Package gradients parses and sanity-checks FSL-format diffusion gradient
// tables (bvals/bvecs) before any expensive external computation runs.
package gradients

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// b-values at or below this threshold count as b=0 volumes.
const b0Threshold = 50.0

// unitNormTol is the accepted deviation of a direction vector from unit
// length. Scanner exports routinely carry small rounding errors.
const unitNormTol = 0.01

// Table holds one diffusion gradient table: N b-values and a 3xN matrix of
// gradient directions.
type Table struct {
	Bvals []float64
	Bvecs *mat.Dense
}

// Load reads FSL-format gradient files: bvals is a single row of N values,
// bvecs is three rows of N values each.
func Load(bvalsPath, bvecsPath string) (*Table, error) {
	bvalRows, err := readRows(bvalsPath)
	if err != nil {
		return nil, err
	}
	if len(bvalRows) != 1 {
		return nil, fmt.Errorf("%s: expected 1 row of b-values, got %d", bvalsPath, len(bvalRows))
	}
	bvals := bvalRows[0]

	bvecRows, err := readRows(bvecsPath)
	if err != nil {
		return nil, err
	}
	if len(bvecRows) != 3 {
		return nil, fmt.Errorf("%s: expected 3 rows of gradient directions, got %d", bvecsPath, len(bvecRows))
	}
	for i, row := range bvecRows {
		if len(row) != len(bvals) {
			return nil, fmt.Errorf("%s: row %d has %d entries, bvals has %d", bvecsPath, i, len(row), len(bvals))
		}
	}

	bvecs := mat.NewDense(3, len(bvals), nil)
	for i, row := range bvecRows {
		bvecs.SetRow(i, row)
	}
	return &Table{Bvals: bvals, Bvecs: bvecs}, nil
}

func readRows(path string) ([][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gradient file: %w", err)
	}
	var rows [][]float64
	for i, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for j, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: line %d: bad value %q", path, i+1, f)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty gradient file", path)
	}
	return rows, nil
}

// Count returns the number of diffusion volumes described by the table.
func (t *Table) Count() int { return len(t.Bvals) }

// B0Count returns the number of b=0 volumes.
func (t *Table) B0Count() int {
	n := 0
	for _, b := range t.Bvals {
		if b <= b0Threshold {
			n++
		}
	}
	return n
}

// Shells returns the distinct non-zero shells, with b-values rounded to the
// nearest 100 to absorb scanner jitter, in ascending order.
func (t *Table) Shells() []float64 {
	seen := make(map[float64]bool)
	for _, b := range t.Bvals {
		if b <= b0Threshold {
			continue
		}
		seen[math.Round(b/100)*100] = true
	}
	shells := make([]float64, 0, len(seen))
	for s := range seen {
		shells = append(shells, s)
	}
	sort.Float64s(shells)
	return shells
}

// Validate checks the table is usable for tractography: at least one b=0
// volume for brain-volume derivation, at least one diffusion shell, and
// unit-norm direction vectors for every diffusion-weighted volume.
func (t *Table) Validate() error {
	if t.B0Count() == 0 {
		return fmt.Errorf("gradient table contains no b=0 volume")
	}
	if len(t.Shells()) == 0 {
		return fmt.Errorf("gradient table contains no diffusion-weighted volume")
	}
	for i, b := range t.Bvals {
		if b <= b0Threshold {
			continue
		}
		norm := mat.Norm(t.Bvecs.ColView(i), 2)
		if math.Abs(norm-1) > unitNormTol {
			return fmt.Errorf("gradient direction %d (b=%g) has norm %.4f, expected unit length", i, b, norm)
		}
	}
	return nil
}
