package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberlab-data/tractopipe/internal/artifacts"
	"github.com/fiberlab-data/tractopipe/internal/config"
)

func localConfig() *config.Run {
	cfg := config.Default()
	cfg.Subject = "sub-01"
	cfg.DWI = "/data/dwi.nii.gz"
	cfg.Bvals = "/data/dwi.bval"
	cfg.Bvecs = "/data/dwi.bvec"
	cfg.Outdir = "/data/out"
	cfg.Tempdir = "/tmp/tracto"
	cfg.Threads = 4
	return cfg
}

func TestBuild_LocalWithSIFT2NoMask(t *testing.T) {
	t.Parallel()

	cfg := localConfig()
	cfg.MTracks = 5
	cfg.SeedGMWMI = true
	cfg.SIFT2 = true

	plan, err := Build(cfg)
	require.NoError(t, err)

	want := []string{
		StageDeriveBrainVolume,
		StageDeriveBrainMask,
		StageEstimateFOD,
		StageGenerateTracks,
		StageComputeWeights,
	}
	if diff := cmp.Diff(want, plan.StageIDs()); diff != "" {
		t.Errorf("stage plan mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_GlobalWithPreSuppliedAnatomy(t *testing.T) {
	t.Parallel()

	cfg := localConfig()
	cfg.Global = true
	cfg.NodifBrain = "/data/nodif_brain.nii.gz"
	cfg.NodifBrainMask = "/data/nodif_brain_mask.nii.gz"

	plan, err := Build(cfg)
	require.NoError(t, err)

	want := []string{StageEstimateFOD, StageGlobalTracks}
	if diff := cmp.Diff(want, plan.StageIDs()); diff != "" {
		t.Errorf("stage plan mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_NoSIFTTargetMeansNoFilterStage(t *testing.T) {
	t.Parallel()

	cfg := localConfig()
	plan, err := Build(cfg)
	require.NoError(t, err)

	assert.False(t, plan.Has(StageFilterTracks))
	assert.False(t, plan.Has(StageComputeWeights))
}

func TestBuild_GlobalNeverPlansFilteringOrWeighting(t *testing.T) {
	t.Parallel()

	cfg := localConfig()
	cfg.Global = true
	cfg.SIFTMTracks = 2
	cfg.SIFT2 = true

	plan, err := Build(cfg)
	require.NoError(t, err)

	assert.False(t, plan.Has(StageFilterTracks))
	assert.False(t, plan.Has(StageComputeWeights))
	assert.True(t, plan.Has(StageGlobalTracks))
}

func TestBuild_SIFT2OnRawTracks(t *testing.T) {
	t.Parallel()

	// No SIFT target but SIFT2 requested: weights are computed over the
	// raw streamlines.
	cfg := localConfig()
	cfg.SIFT2 = true

	plan, err := Build(cfg)
	require.NoError(t, err)

	require.True(t, plan.Has(StageComputeWeights))
	assert.False(t, plan.Has(StageFilterTracks))

	var weights Stage
	for _, s := range plan.Stages {
		if s.ID == StageComputeWeights {
			weights = s
		}
	}
	assert.Contains(t, weights.Inputs, artifacts.RoleTracks)
}

func TestBuild_CleanupIsLastAndRequiresFilteredSet(t *testing.T) {
	t.Parallel()

	t.Run("with SIFT", func(t *testing.T) {
		t.Parallel()
		cfg := localConfig()
		cfg.SIFTMTracks = 2
		cfg.DeleteRawTracks = true

		plan, err := Build(cfg)
		require.NoError(t, err)

		ids := plan.StageIDs()
		require.NotEmpty(t, ids)
		assert.Equal(t, StageDeleteRawTracks, ids[len(ids)-1])
	})

	t.Run("without SIFT no cleanup", func(t *testing.T) {
		t.Parallel()
		cfg := localConfig()
		cfg.DeleteRawTracks = true

		plan, err := Build(cfg)
		require.NoError(t, err)
		assert.False(t, plan.Has(StageDeleteRawTracks))
	})

	t.Run("cleanup after weighting", func(t *testing.T) {
		t.Parallel()
		cfg := localConfig()
		cfg.SIFTMTracks = 2
		cfg.SIFT2 = true
		cfg.DeleteRawTracks = true

		plan, err := Build(cfg)
		require.NoError(t, err)

		ids := plan.StageIDs()
		assert.Equal(t, StageDeleteRawTracks, ids[len(ids)-1])
		assert.Equal(t, StageComputeWeights, ids[len(ids)-2])
	})
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(cfg *config.Run)
	}{
		{"local missing maxlength", func(cfg *config.Run) { cfg.MaxLength = 0 }},
		{"local missing mtracks", func(cfg *config.Run) { cfg.MTracks = 0 }},
		{"local missing cutoff", func(cfg *config.Run) { cfg.Cutoff = 0 }},
		{"global with explicit mtracks", func(cfg *config.Run) { cfg.Global = true; cfg.MTracks = 5 }},
		{"global with explicit maxlength", func(cfg *config.Run) { cfg.Global = true; cfg.MaxLength = 100 }},
		{"global with explicit cutoff", func(cfg *config.Run) { cfg.Global = true; cfg.Cutoff = 0.1 }},
		{"missing subject", func(cfg *config.Run) { cfg.Subject = "" }},
		{"negative sift target", func(cfg *config.Run) { cfg.SIFTMTracks = -1 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := localConfig()
			tt.mutate(cfg)

			_, err := Build(cfg)
			require.Error(t, err)
			var confErr *config.ConfigurationError
			assert.ErrorAs(t, err, &confErr)
		})
	}
}

func TestBuild_PreSuppliedBrainVolumeSkipsDerivation(t *testing.T) {
	t.Parallel()

	cfg := localConfig()
	cfg.NodifBrain = "/data/nodif_brain.nii.gz"

	plan, err := Build(cfg)
	require.NoError(t, err)

	assert.False(t, plan.Has(StageDeriveBrainVolume))
	assert.True(t, plan.Has(StageDeriveBrainMask))
}
