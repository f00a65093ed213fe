// Package project tracks which downloaded files belong to which USGS
// source project. A project is the tile collection published under one
// "Projects/<name>/" path segment of the catalog's download URLs.
package project

import (
	"fmt"
	"os"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// Kind selects the data family a group holds. A group never mixes kinds.
type Kind string

const (
	DEM   Kind = "dem"
	Lidar Kind = "lidar"
)

// Group is one project's set of source tiles, in discovery order.
type Group struct {
	Name  string // stable project identifier from the download URL
	Dir   string // on-disk project directory
	Files []string
}

// Set is the in-memory grouping index shared between the download stage
// and the merge engines. It is owned by the orchestrator and mutated only
// between stage calls; no locking.
type Set struct {
	order  []string
	groups map[string]*Group
}

func NewSet() *Set {
	return &Set{groups: make(map[string]*Group)}
}

// Append records file under the named project, creating the group on
// first sight. Appending a path the group already holds is a no-op, so
// re-downloading a cached file cannot double-count it.
func (s *Set) Append(name, dir, file string) *Group {
	g, ok := s.groups[name]
	if !ok {
		g = &Group{Name: name, Dir: dir}
		s.groups[name] = g
		s.order = append(s.order, name)
	}
	for _, f := range g.Files {
		if f == file {
			return g
		}
	}
	g.Files = append(g.Files, file)
	return g
}

// Get returns the group with the given project name.
func (s *Set) Get(name string) (*Group, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// Groups returns the groups in first-seen order.
func (s *Set) Groups() []*Group {
	out := make([]*Group, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.groups[name])
	}
	return out
}

func (s *Set) Len() int { return len(s.order) }

// AllFiles flattens every group's files, group order first.
func (s *Set) AllFiles() []string {
	var out []string
	for _, g := range s.Groups() {
		out = append(out, g.Files...)
	}
	return out
}

// Name derives the project identifier from a catalog download URL: the
// path segment immediately after the literal "Projects/" marker.
func Name(rawURL string) (string, error) {
	_, rest, ok := strings.Cut(rawURL, "Projects/")
	if !ok {
		return "", fmt.Errorf("%w: no Projects/ segment in %q", usgserr.ErrMalformedURL, rawURL)
	}
	name, _, _ := strings.Cut(rest, "/")
	if name == "" {
		return "", fmt.Errorf("%w: empty project segment in %q", usgserr.ErrMalformedURL, rawURL)
	}
	return name, nil
}

// IsOriginal reports whether filename follows the original-tile naming
// convention for the kind, i.e. is an input rather than something a
// previous run produced.
func IsOriginal(filename string, kind Kind) bool {
	lower := strings.ToLower(filename)
	switch kind {
	case DEM:
		if !strings.HasSuffix(lower, ".tif") {
			return false
		}
		for _, marker := range []string{"merged", "filtered", "warped"} {
			if strings.Contains(lower, marker) {
				return false
			}
		}
		return true
	case Lidar:
		return strings.HasSuffix(lower, ".las") || strings.HasSuffix(lower, ".laz")
	}
	return false
}

// Discover seeds a Set from files already on disk under
// <outputDir>/<kind>/<project>/, so a second run against the same output
// directory resumes instead of starting over. A missing directory yields
// an empty set.
func Discover(fsys billy.Filesystem, outputDir string, kind Kind) (*Set, error) {
	set := NewSet()

	kindDir := fsys.Join(outputDir, string(kind))
	entries, err := fsys.ReadDir(kindDir)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("scan %s: %w", kindDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectDir := fsys.Join(kindDir, entry.Name())
		files, err := fsys.ReadDir(projectDir)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", projectDir, err)
		}
		for _, f := range files {
			if f.IsDir() || !IsOriginal(f.Name(), kind) {
				continue
			}
			set.Append(entry.Name(), projectDir, fsys.Join(projectDir, f.Name()))
		}
	}
	return set, nil
}
