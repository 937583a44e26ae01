// Package volume implements the plain directory-per-volume store: a
// volume's identity is its user-supplied name, and the absence of its
// directory means the absence of the volume — there is no separate
// metadata record to go stale.
package volume

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// Store manages the directories backing named volumes.
type Store interface {
	Create(name string) (mountpoint string, err error)
	Get(name string) (mountpoint string, ok bool)
	List() ([]string, error)
	Remove(name string) error
}

type dirStore struct {
	root string
}

// New returns a Store rooted at root (rustker_data/volumes).
func New(root string) (Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed creating volumes root")
	}
	return &dirStore{root: root}, nil
}

func (s *dirStore) path(name string) string {
	return filepath.Join(s.root, name)
}

// Create makes the backing directory for a new (or existing) volume and
// returns its mountpoint.
func (s *dirStore) Create(name string) (string, error) {
	path := s.path(name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", apperr.Wrap(apperr.CodeFSIOError, err, "failed creating volume directory")
	}
	return path, nil
}

// Get returns the mountpoint for name if its directory exists.
func (s *dirStore) Get(name string) (string, bool) {
	path := s.path(name)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return "", false
	}
	return path, true
}

// List returns the names of all volumes currently present on disk.
func (s *dirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed listing volumes")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a volume's backing directory.
func (s *dirStore) Remove(name string) error {
	path := s.path(name)
	if _, err := os.Stat(path); err != nil {
		return apperr.Newf(apperr.CodeVolumeNotFound, "volume %q does not exist", name)
	}
	if err := os.RemoveAll(path); err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed removing volume directory")
	}
	return nil
}
