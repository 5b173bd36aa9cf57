package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/observability"
)

const stagingDir = ".staging"

// Store is the package slot cache rooted at a directory.
type Store struct {
	root string
}

// New returns a Store rooted at root. Nothing is created until the first
// commit.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) dir(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *Store) path(name, version string) string {
	return filepath.Join(s.dir(name), version)
}

// List returns the complete slots of name, sorted by version string. A
// package that was never installed yields an empty list.
func (s *Store) List(name string) ([]Slot, error) {
	if err := errs.ValidateNpmPackageName(name); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeCache, err, "list %s", name)
	}

	var slots []Slot
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.dir(name), e.Name())
		m, ok := readMarker(path)
		if !ok {
			continue
		}
		slots = append(slots, Slot{
			Name:        name,
			Version:     e.Name(),
			Path:        path,
			InstalledAt: m.InstalledAt,
		})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Version < slots[j].Version })
	return slots, nil
}

// Lookup returns the slot for an exact version.
func (s *Store) Lookup(name, version string) (Slot, bool, error) {
	if err := errs.ValidateNpmPackageName(name); err != nil {
		return Slot{}, false, err
	}
	if err := errs.ValidateVersionName(version); err != nil {
		return Slot{}, false, err
	}

	path := s.path(name, version)
	m, ok := readMarker(path)
	if !ok {
		return Slot{}, false, nil
	}
	return Slot{Name: name, Version: version, Path: path, InstalledAt: m.InstalledAt}, true, nil
}

// Commit moves the staged install at src into the slot for name@version.
//
// The completion marker is written into src first, so the rename publishes
// a complete slot in one step. When another process committed the same
// slot in the meantime, src is discarded and the existing slot returned. A
// leftover directory without a marker is replaced.
func (s *Store) Commit(ctx context.Context, name, version, src string) (Slot, error) {
	if err := errs.ValidateNpmPackageName(name); err != nil {
		return Slot{}, err
	}
	if err := errs.ValidateVersionName(version); err != nil {
		return Slot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Slot{}, err
	}

	slot := Slot{
		Name:        name,
		Version:     version,
		Path:        s.path(name, version),
		InstalledAt: time.Now().UTC(),
	}
	if err := writeMarker(src, slot); err != nil {
		return Slot{}, errs.Wrap(errs.ErrCodeCache, err, "mark %s@%s complete", name, version)
	}
	if err := os.MkdirAll(filepath.Dir(slot.Path), 0o755); err != nil {
		return Slot{}, errs.Wrap(errs.ErrCodeCache, err, "create cache directory for %s", name)
	}

	for attempt := 0; ; attempt++ {
		err := os.Rename(src, slot.Path)
		if err == nil {
			observability.Cache().OnSlotCommit(ctx, name, version)
			return slot, nil
		}

		if existing, ok, _ := s.Lookup(name, version); ok {
			_ = os.RemoveAll(src)
			return existing, nil
		}
		_, statErr := os.Stat(slot.Path)
		if attempt >= maxCommitAttempts-1 || (statErr != nil && !os.IsNotExist(statErr)) {
			return Slot{}, errs.Wrap(errs.ErrCodeCache, err, "relocate %s@%s into cache", name, version)
		}
		if statErr != nil {
			// Another process moved the leftover aside; try again.
			continue
		}
		if err := discardIncomplete(slot.Path); err != nil {
			return Slot{}, errs.Wrap(errs.ErrCodeCache, err, "remove incomplete slot %s@%s", name, version)
		}
	}
}

const maxCommitAttempts = 4

// discardIncomplete moves the directory at path aside and deletes it. A
// directory that gained a marker between the caller's lookup and the move
// belongs to another process and is put back instead.
func discardIncomplete(path string) error {
	aside, err := os.MkdirTemp(filepath.Dir(path), ".discard-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(aside)

	moved := filepath.Join(aside, filepath.Base(path))
	if err := os.Rename(path, moved); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if _, ok := readMarker(moved); ok {
		// Fails only when path was filled again meanwhile; that directory stays.
		_ = os.Rename(moved, path)
	}
	return nil
}

// Names returns every package name with at least one complete slot,
// including scoped names ("@scope/name").
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeCache, err, "read cache root")
	}

	var candidates []string
	for _, e := range entries {
		n := e.Name()
		switch {
		case !e.IsDir(), strings.HasPrefix(n, "."):
		case strings.HasPrefix(n, "@"):
			scoped, err := os.ReadDir(filepath.Join(s.root, n))
			if err != nil {
				continue
			}
			for _, se := range scoped {
				if se.IsDir() {
					candidates = append(candidates, n+"/"+se.Name())
				}
			}
		default:
			candidates = append(candidates, n)
		}
	}

	var names []string
	for _, n := range candidates {
		slots, err := s.List(n)
		if err != nil || len(slots) == 0 {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Staging returns the staging directory for one run. It lives under the
// root so that Commit is a same-filesystem rename.
func (s *Store) Staging(runID string) string {
	return filepath.Join(s.root, stagingDir, runID)
}

// RemoveStaging deletes the staging directory of a run. Removing a missing
// directory is not an error.
func (s *Store) RemoveStaging(runID string) error {
	if err := os.RemoveAll(s.Staging(runID)); err != nil {
		return errs.Wrap(errs.ErrCodeCache, err, "remove staging directory")
	}
	return nil
}

// Clear deletes the whole cache and returns how many slots it held.
func (s *Store) Clear() (int, error) {
	names, err := s.Names()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range names {
		slots, _ := s.List(n)
		count += len(slots)
	}
	if err := os.RemoveAll(s.root); err != nil {
		return count, errs.Wrap(errs.ErrCodeCache, err, "clear cache %s", s.root)
	}
	return count, nil
}

// String implements fmt.Stringer.
func (s *Store) String() string {
	return fmt.Sprintf("cache(%s)", s.root)
}
