package gradients

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, bvals, bvecs string) (bvalsPath, bvecsPath string) {
	t.Helper()
	dir := t.TempDir()
	bvalsPath = filepath.Join(dir, "dwi.bval")
	bvecsPath = filepath.Join(dir, "dwi.bvec")
	require.NoError(t, os.WriteFile(bvalsPath, []byte(bvals), 0644))
	require.NoError(t, os.WriteFile(bvecsPath, []byte(bvecs), 0644))
	return bvalsPath, bvecsPath
}

func TestLoad_Valid(t *testing.T) {
	t.Parallel()

	bvals, bvecs := writeTable(t,
		"0 1000 1000 2000\n",
		"0 1 0 0.7071\n0 0 1 0.7071\n0 0 0 0\n")

	table, err := Load(bvals, bvecs)
	require.NoError(t, err)

	assert.Equal(t, 4, table.Count())
	assert.Equal(t, 1, table.B0Count())
	assert.Equal(t, []float64{1000, 2000}, table.Shells())
	assert.NoError(t, table.Validate())
}

func TestLoad_ColumnCountMismatch(t *testing.T) {
	t.Parallel()

	bvals, bvecs := writeTable(t,
		"0 1000 1000\n",
		"0 1 0 0\n0 0 1 0\n0 0 0 1\n")

	_, err := Load(bvals, bvecs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entries")
}

func TestLoad_WrongRowCounts(t *testing.T) {
	t.Parallel()

	t.Run("bvals two rows", func(t *testing.T) {
		t.Parallel()
		bvals, bvecs := writeTable(t, "0 1000\n0 1000\n", "0 1\n0 0\n0 0\n")
		_, err := Load(bvals, bvecs)
		assert.Error(t, err)
	})

	t.Run("bvecs two rows", func(t *testing.T) {
		t.Parallel()
		bvals, bvecs := writeTable(t, "0 1000\n", "0 1\n0 0\n")
		_, err := Load(bvals, bvecs)
		assert.Error(t, err)
	})
}

func TestLoad_BadValue(t *testing.T) {
	t.Parallel()

	bvals, bvecs := writeTable(t, "0 one\n", "0 1\n0 0\n0 0\n")
	_, err := Load(bvals, bvecs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad value")
}

func TestValidate_NoB0(t *testing.T) {
	t.Parallel()

	bvals, bvecs := writeTable(t, "1000 1000\n", "1 0\n0 1\n0 0\n")
	table, err := Load(bvals, bvecs)
	require.NoError(t, err)
	assert.ErrorContains(t, table.Validate(), "no b=0")
}

func TestValidate_NoShell(t *testing.T) {
	t.Parallel()

	bvals, bvecs := writeTable(t, "0 0\n", "0 0\n0 0\n0 0\n")
	table, err := Load(bvals, bvecs)
	require.NoError(t, err)
	assert.ErrorContains(t, table.Validate(), "no diffusion-weighted")
}

func TestValidate_NonUnitDirection(t *testing.T) {
	t.Parallel()

	bvals, bvecs := writeTable(t, "0 1000\n", "0 2\n0 0\n0 0\n")
	table, err := Load(bvals, bvecs)
	require.NoError(t, err)
	assert.ErrorContains(t, table.Validate(), "unit length")
}

func TestShells_AbsorbScannerJitter(t *testing.T) {
	t.Parallel()

	bvals, bvecs := writeTable(t,
		"0 995 1005 2990\n",
		"0 1 0 1\n0 0 1 0\n0 0 0 0\n")

	table, err := Load(bvals, bvecs)
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 3000}, table.Shells())
}
