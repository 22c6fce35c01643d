// Package config defines the resolved parameter set for one tractography
// run and the fail-fast validation that precedes any external invocation.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Default numeric tracking parameters, mirroring the historical driver.
const (
	DefaultMTracks   = 10.0
	DefaultMaxLength = 250.0
	DefaultCutoff    = 0.06
	DefaultFSLInit   = "/etc/fsl/5.0/fsl.sh"
)

// ConfigurationError reports an invalid or contradictory parameter
// combination, detected before any external tool runs.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// Errorf builds a ConfigurationError from a format string.
func Errorf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// Run is the immutable, resolved configuration of one pipeline execution.
// It is assembled once from defaults, an optional YAML file and flags, and
// never mutated afterwards.
type Run struct {
	// Subject and inputs.
	Subject string `yaml:"subject"`
	DWI     string `yaml:"dwi"`
	Bvals   string `yaml:"bvals"`
	Bvecs   string `yaml:"bvecs"`

	// Directories. Tempdir holds the working artifacts; Outdir receives
	// the provenance logs.
	Outdir  string `yaml:"outdir"`
	Tempdir string `yaml:"tempdir"`

	// Execution.
	Threads int `yaml:"threads"`

	// Tracking mode and local-tracking parameters. The numeric parameters
	// are only meaningful when Global is false.
	Global    bool    `yaml:"global"`
	MTracks   float64 `yaml:"mtracks"`   // millions of streamlines
	MaxLength float64 `yaml:"maxlength"` // mm
	Cutoff    float64 `yaml:"cutoff"`    // FOD amplitude cutoff
	SeedGMWMI bool    `yaml:"seedGMWMI"` // false = dynamic white-matter seeding

	// Streamline post-processing.
	SIFTMTracks float64 `yaml:"siftMTracks"` // millions; 0 disables SIFT
	SIFT2       bool    `yaml:"sift2"`

	// Optional pre-supplied anatomy. When set, the corresponding
	// derivation stages are skipped.
	NodifBrain     string `yaml:"nodifBrain"`
	NodifBrainMask string `yaml:"nodifBrainMask"`
	T1             string `yaml:"t1"`
	FSSubjectsDir  string `yaml:"fsSubjectsDir"`

	// Output handling.
	NoCompress      bool `yaml:"noCompress"`
	DeleteRawTracks bool `yaml:"deleteRawTracks"`
	Overwrite       bool `yaml:"overwrite"`

	// Toolkit environment bootstrap scripts.
	FSLInit    string `yaml:"fslInit"`
	MRtrixInit string `yaml:"mrtrixInit"`

	// Optional run-ledger database path.
	LedgerPath string `yaml:"ledger"`
}

// Default returns a configuration with default values.
func Default() *Run {
	return &Run{
		Threads:   runtime.NumCPU(),
		MTracks:   DefaultMTracks,
		MaxLength: DefaultMaxLength,
		Cutoff:    DefaultCutoff,
		FSLInit:   DefaultFSLInit,
	}
}

// Load overlays a YAML file onto the defaults. A missing file is not an
// error; flags are applied by the caller on top of the result.
func Load(path string) (*Run, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate performs the cheap, fail-fast checks: required inputs present
// and the tracking-mode parameter combination coherent. It never touches
// the filesystem beyond what the caller already supplied.
func (c *Run) Validate() error {
	if c.Subject == "" {
		return Errorf("subject identifier is required")
	}
	if c.DWI == "" || c.Bvals == "" || c.Bvecs == "" {
		return Errorf("dwi, bvals and bvecs are all required")
	}
	if c.Outdir == "" {
		return Errorf("output directory is required")
	}
	if c.Tempdir == "" {
		return Errorf("temp directory is required")
	}
	if c.Threads < 1 {
		return Errorf("thread count must be at least 1, got %d", c.Threads)
	}
	if c.SIFTMTracks < 0 {
		return Errorf("SIFT target count must not be negative, got %g", c.SIFTMTracks)
	}

	if c.Global {
		// Local-only numeric parameters explicitly set alongside global
		// tractography signal ambiguous intent; flag, don't drop.
		if c.MTracks != DefaultMTracks {
			return Errorf("mtracks is a local-tracking parameter; remove it when requesting global tractography")
		}
		if c.MaxLength != DefaultMaxLength {
			return Errorf("maxlength is a local-tracking parameter; remove it when requesting global tractography")
		}
		if c.Cutoff != DefaultCutoff {
			return Errorf("cutoff is a local-tracking parameter; remove it when requesting global tractography")
		}
		return nil
	}

	if c.MTracks <= 0 {
		return Errorf("local tracking requires a positive streamline count, got %g", c.MTracks)
	}
	if c.MaxLength <= 0 {
		return Errorf("local tracking requires a positive maximum streamline length, got %g", c.MaxLength)
	}
	if c.Cutoff <= 0 {
		return Errorf("local tracking requires a positive FOD amplitude cutoff, got %g", c.Cutoff)
	}
	return nil
}

// ToMap flattens the configuration into a string-keyed map for the
// provenance inputs record. encoding/json sorts map keys, which gives the
// record its deterministic ordering.
func (c *Run) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"subject":           c.Subject,
		"dwi":               c.DWI,
		"bvals":             c.Bvals,
		"bvecs":             c.Bvecs,
		"outdir":            c.Outdir,
		"tempdir":           c.Tempdir,
		"threads":           c.Threads,
		"global":            c.Global,
		"mtracks":           c.MTracks,
		"maxlength":         c.MaxLength,
		"cutoff":            c.Cutoff,
		"seed_gmwmi":        c.SeedGMWMI,
		"sift_mtracks":      c.SIFTMTracks,
		"sift2":             c.SIFT2,
		"nodif_brain":       c.NodifBrain,
		"nodif_brain_mask":  c.NodifBrainMask,
		"t1":                c.T1,
		"fs_subjects_dir":   c.FSSubjectsDir,
		"no_compress":       c.NoCompress,
		"delete_raw_tracks": c.DeleteRawTracks,
		"overwrite":         c.Overwrite,
		"fsl_init":          c.FSLInit,
		"mrtrix_init":       c.MRtrixInit,
	}
}
