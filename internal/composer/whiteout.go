package composer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

const (
	opaqueMarkerName = ".wh..wh..opq"
	whiteoutPrefix   = ".wh."
)

// applyWhiteouts walks the fully-extracted rootfs and removes whiteout and
// opaque-directory targets. pathLayerIndex records which layer last wrote
// each path, so an opaque marker can tell which sibling entries predate it:
// an opaque-dir is treated as a whiteout of sibling entries discovered
// before this marker's layer.
func applyWhiteouts(root string, pathLayerIndex map[string]int) error {
	opaqueDirs := make(map[string]int)
	var whiteoutFiles []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		base := filepath.Base(rel)
		switch {
		case base == opaqueMarkerName:
			dir := filepath.Dir(rel)
			opaqueDirs[dir] = pathLayerIndex[rel]
		case strings.HasPrefix(base, whiteoutPrefix):
			whiteoutFiles = append(whiteoutFiles, rel)
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeFSIOError, err, "failed walking rootfs for whiteout processing")
	}

	for dir, markerIdx := range opaqueDirs {
		for p, idx := range pathLayerIndex {
			if p == dir || !isUnder(dir, p) {
				continue
			}
			if idx < markerIdx {
				os.RemoveAll(filepath.Join(root, p))
			}
		}
		os.Remove(filepath.Join(root, dir, opaqueMarkerName))
	}

	for _, rel := range whiteoutFiles {
		dir := filepath.Dir(rel)
		name := strings.TrimPrefix(filepath.Base(rel), whiteoutPrefix)
		if name == "" {
			continue
		}
		// Whiteout of an already-absent target is a silent no-op,
		// consistent with Docker.
		os.RemoveAll(filepath.Join(root, dir, name))
		os.Remove(filepath.Join(root, rel))
	}

	return nil
}

// isUnder reports whether p is dir itself, or nested under it. dir == "."
// means the rootfs root, which every non-root path is under.
func isUnder(dir, p string) bool {
	if dir == "." {
		return p != "."
	}
	return p == dir || strings.HasPrefix(p, dir+string(filepath.Separator))
}
