package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLocal() *Run {
	cfg := Default()
	cfg.Subject = "sub-01"
	cfg.DWI = "/data/dwi.nii.gz"
	cfg.Bvals = "/data/dwi.bval"
	cfg.Bvecs = "/data/dwi.bvec"
	cfg.Outdir = "/data/out"
	cfg.Tempdir = "/tmp/tracto"
	return cfg
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, DefaultMTracks, cfg.MTracks)
	assert.Equal(t, DefaultMaxLength, cfg.MaxLength)
	assert.Equal(t, DefaultCutoff, cfg.Cutoff)
	assert.Equal(t, DefaultFSLInit, cfg.FSLInit)
	assert.GreaterOrEqual(t, cfg.Threads, 1)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *Run)
		wantErr string
	}{
		{"valid local", func(cfg *Run) {}, ""},
		{"valid global", func(cfg *Run) { cfg.Global = true }, ""},
		{"valid global with sift2", func(cfg *Run) { cfg.Global = true; cfg.SIFT2 = true }, ""},
		{"missing subject", func(cfg *Run) { cfg.Subject = "" }, "subject"},
		{"missing dwi", func(cfg *Run) { cfg.DWI = "" }, "dwi"},
		{"missing outdir", func(cfg *Run) { cfg.Outdir = "" }, "output directory"},
		{"missing tempdir", func(cfg *Run) { cfg.Tempdir = "" }, "temp directory"},
		{"zero threads", func(cfg *Run) { cfg.Threads = 0 }, "thread count"},
		{"local zero mtracks", func(cfg *Run) { cfg.MTracks = 0 }, "streamline count"},
		{"local zero maxlength", func(cfg *Run) { cfg.MaxLength = 0 }, "maximum streamline length"},
		{"local zero cutoff", func(cfg *Run) { cfg.Cutoff = 0 }, "cutoff"},
		{"negative sift target", func(cfg *Run) { cfg.SIFTMTracks = -2 }, "SIFT target"},
		{"global explicit mtracks", func(cfg *Run) { cfg.Global = true; cfg.MTracks = 5 }, "mtracks"},
		{"global explicit maxlength", func(cfg *Run) { cfg.Global = true; cfg.MaxLength = 100 }, "maxlength"},
		{"global explicit cutoff", func(cfg *Run) { cfg.Global = true; cfg.Cutoff = 0.1 }, "cutoff"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validLocal()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var confErr *ConfigurationError
			assert.ErrorAs(t, err, &confErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tracto.yaml")
	content := `subject: sub-07
dwi: /data/sub-07/dwi.nii.gz
mtracks: 5
sift2: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sub-07", cfg.Subject)
	assert.Equal(t, 5.0, cfg.MTracks)
	assert.True(t, cfg.SIFT2)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultMaxLength, cfg.MaxLength)
	assert.Equal(t, DefaultFSLInit, cfg.FSLInit)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMTracks, cfg.MTracks)
}

func TestLoad_BadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subject: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestToMap_CoversConfiguration(t *testing.T) {
	t.Parallel()

	cfg := validLocal()
	cfg.SIFT2 = true
	m := cfg.ToMap()

	assert.Equal(t, "sub-01", m["subject"])
	assert.Equal(t, true, m["sift2"])
	assert.Equal(t, DefaultCutoff, m["cutoff"])
	// Absent optional anatomy still appears, as empty values.
	assert.Equal(t, "", m["nodif_brain"])
}
