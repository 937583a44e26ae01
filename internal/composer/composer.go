// Package composer materializes a container's rootfs by extracting an
// ordered list of image layers into a target directory and then applying
// whiteout semantics. Grounded on tetratelabs-car's ReadFilesystemLayer
// (gzip+tar walking, media-type dispatch) but goes considerably further
// by implementing both whiteout and opaque-directory removal once all
// layers are extracted, and defers symlink/hardlink
// creation to a copy-based materialization pass because unprivileged
// WSL-hosted processes cannot always create real symlinks against a
// Windows-backed filesystem.
package composer

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/store/blob"
	"github.com/hashicorp/go-hclog"
)

type deferredLink struct {
	path       string
	linkTarget string
	isSymbolic bool
}

// Composer extracts ordered layers into a target rootfs directory.
type Composer struct {
	store  blob.Store
	logger hclog.Logger
}

// New returns a Composer reading layer blobs from store.
func New(store blob.Store, logger hclog.Logger) *Composer {
	return &Composer{store: store, logger: logger}
}

// ComposeRootfs extracts layers (base first) into target, then applies
// whiteout and opaque-directory semantics across the composed tree.
func (c *Composer) ComposeRootfs(layers []string, target string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed creating rootfs target")
	}

	pathLayerIndex := make(map[string]int)
	var deferred []deferredLink

	for idx, digest := range layers {
		if !c.store.HasLayer(digest) {
			return apperr.Newf(apperr.CodeFSLayerNotFound, "layer %s not found in content store", digest)
		}
		links, err := c.unpackLayer(digest, target, idx, pathLayerIndex)
		if err != nil {
			return err
		}
		deferred = append(deferred, links...)
	}

	for _, link := range deferred {
		if err := materializeLink(target, link); err != nil {
			c.logger.Warn("failed materializing deferred link", "path", link.path, "error", err)
		}
	}

	return applyWhiteouts(target, pathLayerIndex)
}

// unpackLayer is the per-layer extraction primitive: digest's gzip-tar is
// opened from the content store and walked entry by entry.
func (c *Composer) unpackLayer(digest, target string, layerIdx int, pathLayerIndex map[string]int) ([]deferredLink, error) {
	f, err := os.Open(c.store.LayerPath(digest))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeFSLayerNotFound, err, "failed opening layer blob")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed opening layer gzip stream")
	}
	defer gz.Close()

	var deferred []deferredLink
	tr := tar.NewReader(gz)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed reading layer tar stream")
		}

		rel := filepath.Clean(th.Name)
		if err := checkSafePath(rel); err != nil {
			return nil, err
		}
		dest := filepath.Join(target, rel)

		switch th.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, os.FileMode(th.Mode)|0755); err != nil {
				return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed creating directory")
			}
			pathLayerIndex[rel] = layerIdx

		case tar.TypeReg, tar.TypeRegA:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed creating parent directory")
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, permOf(th.Mode))
			if err != nil {
				return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed creating file")
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed writing file")
			}
			out.Close()
			pathLayerIndex[rel] = layerIdx

		case tar.TypeSymlink:
			deferred = append(deferred, deferredLink{path: rel, linkTarget: th.Linkname, isSymbolic: true})
			pathLayerIndex[rel] = layerIdx

		case tar.TypeLink:
			deferred = append(deferred, deferredLink{path: rel, linkTarget: th.Linkname, isSymbolic: false})
			pathLayerIndex[rel] = layerIdx

		default:
			// Character/block devices, fifos: not meaningful inside a
			// chroot sandbox on this platform, skipped.
		}
	}
	return deferred, nil
}

func permOf(mode int64) os.FileMode {
	perm := os.FileMode(mode) & os.ModePerm
	if perm == 0 {
		perm = 0644
	}
	return perm
}

// checkSafePath rejects any path with a ".." component or an absolute path,
// either of which would let a layer escape its extraction target.
func checkSafePath(rel string) error {
	if filepath.IsAbs(rel) {
		return apperr.Newf(apperr.CodeFSUnsafePath, "tar entry %q is an absolute path", rel)
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == ".." {
			return apperr.Newf(apperr.CodeFSUnsafePath, "tar entry %q escapes the extraction target", rel)
		}
	}
	return nil
}

// materializeLink resolves a deferred symlink or hardlink and copies its
// target into place, since the engine cannot rely on symlink() succeeding
// for an unprivileged process on the target platform.
func materializeLink(root string, link deferredLink) error {
	dest := filepath.Join(root, link.path)

	var resolvedTarget string
	if link.isSymbolic && !filepath.IsAbs(filepath.FromSlash(link.linkTarget)) && !strings.HasPrefix(link.linkTarget, "/") {
		resolvedTarget = filepath.Join(filepath.Dir(dest), filepath.FromSlash(link.linkTarget))
	} else {
		// Absolute symlinks and all hardlinks resolve against the rootfs root.
		resolvedTarget = filepath.Join(root, strings.TrimPrefix(filepath.FromSlash(link.linkTarget), "/"))
	}

	info, err := os.Stat(resolvedTarget)
	if err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "link target does not exist")
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed creating link parent directory")
	}

	if info.IsDir() {
		return copyDir(resolvedTarget, dest)
	}
	return copyFile(resolvedTarget, dest, info.Mode())
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0755)
		}
		return copyFile(path, target, info.Mode())
	})
}
