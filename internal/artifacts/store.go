// Package artifacts manages the working-directory files produced and
// consumed by the tractography pipeline. Every file is addressed by a
// semantic role; the store owns the mapping from role to concrete path.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
)

// Role identifies an artifact by what it is, not where it lives.
type Role string

// Roles known to the pipeline. The first group is supplied by the caller,
// the second is produced by stages.
const (
	RoleDWI   Role = "dwi"
	RoleBvals Role = "bvals"
	RoleBvecs Role = "bvecs"
	RoleT1    Role = "t1"

	RoleNodifBrain     Role = "nodif_brain"
	RoleNodifBrainMask Role = "nodif_brain_mask"
	RoleWMResponse     Role = "wm_response"
	RoleFOD            Role = "fod"
	RoleTracks         Role = "tracks"
	RoleSIFTTracks     Role = "sift_tracks"
	RoleSIFT2Weights   Role = "sift2_weights"
)

// base file names per role; volume roles get a NIfTI extension appended
// according to the compression preference.
var baseNames = map[Role]string{
	RoleNodifBrain:     "nodif_brain",
	RoleNodifBrainMask: "nodif_brain_mask",
	RoleWMResponse:     "wm_response.txt",
	RoleFOD:            "fod.mif",
	RoleTracks:         "tracks.tck",
	RoleSIFTTracks:     "sift_tracks.tck",
	RoleSIFT2Weights:   "sift2_weights.txt",
}

// volumeRoles are the roles whose file name depends on the compression
// preference.
var volumeRoles = map[Role]bool{
	RoleNodifBrain:     true,
	RoleNodifBrainMask: true,
}

// Error reports a missing or conflicting artifact. It indicates either a
// planning bug, a caller-deleted file, or a leftover file from a previous
// run in the same directory.
type Error struct {
	Role Role
	Path string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("artifact %q (%s): %s", e.Role, e.Path, e.Msg)
}

// Store maps artifact roles to files under a subject-scoped working
// directory. It is not safe for concurrent use; a run owns its store.
type Store struct {
	dir       string
	compress  bool
	overwrite bool
	paths     map[Role]string
}

// NewStore creates the subject working directory under tempDir and returns
// a store rooted there. With compress set, volume artifacts are named with
// a .nii.gz extension, otherwise .nii. With overwrite unset, Prepare
// refuses paths whose file already exists from a previous run.
func NewStore(tempDir, subject string, compress, overwrite bool) (*Store, error) {
	dir := filepath.Join(tempDir, subject)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	return &Store{
		dir:       dir,
		compress:  compress,
		overwrite: overwrite,
		paths:     make(map[Role]string),
	}, nil
}

// Dir returns the working directory owned by the store.
func (s *Store) Dir() string { return s.dir }

// Resolve maps a role to its deterministic path under the working
// directory. Calling Resolve twice for the same role always returns the
// same path. Roles registered with Register resolve to the registered
// path instead.
func (s *Store) Resolve(role Role) string {
	if p, ok := s.paths[role]; ok {
		return p
	}
	name, ok := baseNames[role]
	if !ok {
		// Caller-supplied roles have no generated name; they must be
		// registered before use.
		name = string(role)
	}
	if volumeRoles[role] {
		if s.compress {
			name += ".nii.gz"
		} else {
			name += ".nii"
		}
	}
	return filepath.Join(s.dir, name)
}

// Register records an externally produced artifact (a caller-supplied
// brain mask, the input DWI volume) under the given role.
func (s *Store) Register(role Role, path string) {
	s.paths[role] = path
}

// Require resolves a role and verifies the file exists on disk. Stages use
// it for their declared inputs before invoking any tool.
func (s *Store) Require(role Role) (string, error) {
	path := s.Resolve(role)
	if _, err := os.Stat(path); err != nil {
		return "", &Error{Role: role, Path: path, Msg: "required input artifact is missing"}
	}
	return path, nil
}

// Prepare resolves a role for writing. If the target path already exists
// from a previous run and overwrite was not requested, it returns an
// error rather than letting the tool clobber the file.
func (s *Store) Prepare(role Role) (string, error) {
	path := s.Resolve(role)
	if !s.overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", &Error{Role: role, Path: path, Msg: "already exists; re-run with overwrite enabled or use a fresh temp directory"}
		}
	}
	return path, nil
}

// Delete removes the file backing a role. Deleting an absent artifact is
// not an error: cleanup may be requested even when the producing stage was
// skipped.
func (s *Store) Delete(role Role) error {
	path := s.Resolve(role)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact %q: %w", role, err)
	}
	return nil
}

// Exists reports whether the file backing a role is present on disk.
func (s *Store) Exists(role Role) bool {
	_, err := os.Stat(s.Resolve(role))
	return err == nil
}
