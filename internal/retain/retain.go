// Package retain decides which files in a project directory are final
// artifacts and which are transient intermediates to purge after a merge.
package retain

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Policy applies the shared retention rule. Removal is best-effort
// throughout: a locked or already-gone file is a warning, never a
// pipeline failure.
type Policy struct {
	FS       billy.Filesystem
	Manifest *Manifest // may be nil; falls back to name classification
	Log      *slog.Logger
}

func NewPolicy(fsys billy.Filesystem, manifest *Manifest, log *slog.Logger) *Policy {
	if log == nil {
		log = slog.Default()
	}
	return &Policy{FS: fsys, Manifest: manifest, Log: log}
}

// ShouldKeep is the name-based fallback classification for files no
// manifest entry covers (typically leftovers from older runs). XML
// sidecars are always removable; otherwise a file survives only when it
// is a merged artifact of the target format.
func ShouldKeep(filename, targetExt string, keepMerged bool) bool {
	lower := strings.ToLower(filename)
	if strings.Contains(lower, "xml") {
		return false
	}
	if keepMerged {
		return strings.Contains(lower, "merged") && strings.Contains(lower, targetExt)
	}
	return strings.Contains(lower, targetExt)
}

// keepByRole maps a manifest role to a retention decision for the
// post-merge cleanup pass. Merge artifacts survive only in the target
// encoding: a merged.tif that was since converted to png is a working
// copy, not an output.
func keepByRole(role, path, targetExt string) bool {
	switch role {
	case RoleMerged, RoleFiltered, RoleConverted:
		return strings.HasSuffix(strings.ToLower(path), "."+targetExt)
	}
	return false
}

// FilesToRemove lists the files in dir that the retention rule marks
// removable. Entries with a manifest role are classified by role; the
// rest by name.
func (p *Policy) FilesToRemove(dir, targetExt string, keepMerged bool) ([]string, error) {
	entries, err := p.FS.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var toRemove []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := p.FS.Join(dir, entry.Name())

		if p.Manifest != nil {
			if role, ok := p.Manifest.Role(path); ok {
				if !keepByRole(role, path, targetExt) {
					toRemove = append(toRemove, path)
				}
				continue
			}
		}
		if !ShouldKeep(entry.Name(), targetExt, keepMerged) {
			toRemove = append(toRemove, path)
		}
	}
	return toRemove, nil
}

// Remove deletes each path independently and returns how many removals
// succeeded. Failures are logged warnings.
func (p *Policy) Remove(paths []string) int {
	removed := 0
	for _, path := range paths {
		if err := p.FS.Remove(path); err != nil {
			p.Log.Warn("could not remove file", "path", path, "error", err)
			continue
		}
		removed++
		if p.Manifest != nil {
			if err := p.Manifest.Forget(path); err != nil {
				p.Log.Warn("could not update manifest", "path", path, "error", err)
			}
		}
	}
	return removed
}

// Purge applies FilesToRemove then Remove in one step.
func (p *Policy) Purge(dir, targetExt string, keepMerged bool) int {
	paths, err := p.FilesToRemove(dir, targetExt, keepMerged)
	if err != nil {
		p.Log.Warn("could not list directory for cleanup", "dir", dir, "error", err)
		return 0
	}
	return p.Remove(paths)
}

// RemoveTree deletes an entire per-project subdirectory. Used by the
// global merge scope, where only the top-level artifact survives.
func (p *Policy) RemoveTree(dir string) {
	if err := util.RemoveAll(p.FS, dir); err != nil {
		p.Log.Warn("could not remove project directory", "dir", dir, "error", err)
	}
}
