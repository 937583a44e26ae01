// Package blob implements the content-addressed store for layer blobs and
// image config documents: the exclusive owner of furukawa_data's layers/
// and configs/ directories.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/hashicorp/go-hclog"
)

// Store is the narrow capability set handlers and the layer composer need
// against the content-addressed blob directory. Kept narrow so tests can
// substitute an in-memory double instead of touching disk.
type Store interface {
	HasLayer(digest string) bool
	SaveLayer(digest string, r io.Reader) error
	SaveConfig(id string, data []byte) error
	LayerPath(digest string) string
	ConfigPath(id string) string
	LoadConfig(id string) ([]byte, error)
}

type diskStore struct {
	root   string
	logger hclog.Logger
}

// New returns a Store rooted at root, creating its layers/ and configs/
// subdirectories if they do not already exist.
func New(root string, logger hclog.Logger) (Store, error) {
	s := &diskStore{root: root, logger: logger}
	if err := os.MkdirAll(filepath.Join(root, "layers"), 0755); err != nil {
		return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed creating layers directory")
	}
	if err := os.MkdirAll(filepath.Join(root, "configs"), 0755); err != nil {
		return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed creating configs directory")
	}
	return s, nil
}

func safeName(digest string) string {
	return strings.ReplaceAll(digest, ":", "_")
}

// LayerPath returns the on-disk path for a layer blob's digest.
func (s *diskStore) LayerPath(digest string) string {
	return filepath.Join(s.root, "layers", safeName(digest))
}

// ConfigPath returns the on-disk path for an image config document.
func (s *diskStore) ConfigPath(id string) string {
	return filepath.Join(s.root, "configs", safeName(id)+".json")
}

// HasLayer reports whether a layer blob for digest is already present.
func (s *diskStore) HasLayer(digest string) bool {
	_, err := os.Stat(s.LayerPath(digest))
	return err == nil
}

// SaveLayer streams r to a temporary file, verifies its SHA-256 sum against
// digest, and only then renames it into place: a digest mismatch fails
// with REG_DIGEST_MISMATCH instead of silently persisting corrupt bytes.
func (s *diskStore) SaveLayer(digest string, r io.Reader) error {
	wantHex, err := digestHex(digest)
	if err != nil {
		return err
	}

	dest := s.LayerPath(digest)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed creating layer directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".layer-*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed creating temporary layer file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed writing layer blob")
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed closing layer blob")
	}

	gotHex := hex.EncodeToString(hasher.Sum(nil))
	if gotHex != wantHex {
		return apperr.Newf(apperr.CodeRegDigestMismatch, "layer %s: computed digest sha256:%s does not match", digest, gotHex)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed renaming layer blob into place")
	}
	s.logger.Debug("layer saved", "digest", digest)
	return nil
}

// SaveConfig persists an image config document keyed by image id.
func (s *diskStore) SaveConfig(id string, data []byte) error {
	dest := s.ConfigPath(id)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed creating config directory")
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed writing config document")
	}
	return nil
}

// LoadConfig reads back a previously saved image config document.
func (s *diskStore) LoadConfig(id string) ([]byte, error) {
	data, err := os.ReadFile(s.ConfigPath(id))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed reading config document")
	}
	return data, nil
}

func digestHex(digest string) (string, error) {
	const prefix = "sha256:"
	if !strings.HasPrefix(digest, prefix) {
		return "", apperr.Newf(apperr.CodeImageDigestInvalid, "digest %q is missing the sha256: prefix", digest)
	}
	hexPart := strings.TrimPrefix(digest, prefix)
	if len(hexPart) != 64 {
		return "", apperr.Newf(apperr.CodeImageDigestInvalid, "digest %q has an invalid length", digest)
	}
	return hexPart, nil
}

// Digest computes the sha256:<hex> digest of data, the form used throughout
// the registry client and image metadata.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%s", hex.EncodeToString(sum[:]))
}
