package engine

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/dockerfile"
	"github.com/furukawa-project/furukawad/internal/ids"
	"github.com/furukawa-project/furukawad/internal/image"
	"github.com/furukawa-project/furukawad/internal/store/blob"
)

// BuildImage extracts a tar build context, parses the named Dockerfile out
// of it, composes the FROM image's rootfs, applies COPY/ADD/RUN in source
// order (WORKDIR/USER/EXPOSE/VOLUME have no effect), then re-packs the resulting rootfs as a single new layer
// tagged tagRef. Walks instructions the same way internal/dockerfile's
// parser produced them, executing each against a real rootfs.
func (e *Engine) BuildImage(ctx context.Context, contextTar io.Reader, dockerfileName, tagRef string) (image.Record, error) {
	if dockerfileName == "" {
		dockerfileName = "Dockerfile"
	}

	buildID := "build-" + ids.New()
	buildRoot := filepath.Join(e.ContainersRoot, "_build", buildID)
	contextDir := filepath.Join(buildRoot, "context")
	rootfsDir := filepath.Join(buildRoot, "rootfs")
	defer os.RemoveAll(buildRoot)

	if err := extractTar(contextTar, contextDir); err != nil {
		return image.Record{}, err
	}

	dfPath := filepath.Join(contextDir, dockerfileName)
	dfFile, err := os.Open(dfPath)
	if err != nil {
		return image.Record{}, apperr.Wrap(apperr.CodeInvalidArgument, err, "failed opening "+dockerfileName+" in build context")
	}
	spec, err := dockerfile.Parse(dfFile)
	dfFile.Close()
	if err != nil {
		return image.Record{}, err
	}

	baseRec, found, err := e.Meta.GetImageByTag(ctx, spec.From)
	if err != nil {
		return image.Record{}, err
	}
	if !found {
		baseRec, err = e.PullImage(ctx, spec.From)
		if err != nil {
			return image.Record{}, err
		}
	}

	if err := e.Composer.ComposeRootfs(baseRec.Layers, rootfsDir); err != nil {
		return image.Record{}, apperr.Wrap(apperr.CodeRuntimeRootfsCompositionFailed, err, "failed composing build rootfs")
	}

	var env []string
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	for _, instr := range spec.Instructions {
		switch instr.Kind {
		case "copy", "add":
			if err := copyIntoRootfs(contextDir, rootfsDir, instr.Args[0], instr.Args[1]); err != nil {
				return image.Record{}, apperr.Wrap(apperr.CodeFSIOError, err, "failed applying "+instr.Kind+" instruction")
			}
		case "run":
			if e.Executor == nil {
				e.Logger.Warn("no rootfs executor configured, skipping RUN instruction", "command", instr.Args[0])
				continue
			}
			if err := e.Executor.RunInRootfs(ctx, rootfsDir, []string{"sh", "-c", instr.Args[0]}, env); err != nil {
				return image.Record{}, err
			}
		case "workdir", "user", "expose", "volume":
			// recorded in spec.Instructions for completeness; furukawad has
			// no image-config fields for these yet (tracked for the config
			// builder when the image inspect response grows a Config section).
		}
	}

	layerData, err := tarDirectory(rootfsDir)
	if err != nil {
		return image.Record{}, apperr.Wrap(apperr.CodeFSIOError, err, "failed packing build layer")
	}
	gzippedLayer, err := gzipBytes(layerData)
	if err != nil {
		return image.Record{}, apperr.Wrap(apperr.CodeFSIOError, err, "failed compressing build layer")
	}
	digest := blob.Digest(gzippedLayer)
	if err := e.Blobs.SaveLayer(digest, bytes.NewReader(gzippedLayer)); err != nil {
		return image.Record{}, err
	}

	rec := image.Record{
		ID:       digest,
		RepoTags: []string{tagRef},
		ParentID: baseRec.ID,
		Created:  time.Now().UTC().Unix(),
		Size:     int64(len(layerData)),
		Layers:   append(append([]string{}, baseRec.Layers...), digest),
	}
	if err := e.Meta.SaveImage(ctx, rec); err != nil {
		return image.Record{}, err
	}
	return rec, nil
}

func extractTar(r io.Reader, dest string) error {
	reader, err := maybeGzip(r)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, err, "failed reading build context")
	}
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apperr.Wrap(apperr.CodeInvalidArgument, err, "failed reading build context tar")
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}

func maybeGzip(r io.Reader) (io.Reader, error) {
	br := &bufReader{r: r}
	magic, err := br.peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}

// bufReader lets maybeGzip peek at the first bytes of r without consuming
// them from any caller that reads afterward.
type bufReader struct {
	r   io.Reader
	buf []byte
}

func (b *bufReader) peek(n int) ([]byte, error) {
	b.buf = make([]byte, n)
	read, err := io.ReadFull(b.r, b.buf)
	b.buf = b.buf[:read]
	return b.buf, err
}

func (b *bufReader) Read(p []byte) (int, error) {
	if len(b.buf) > 0 {
		n := copy(p, b.buf)
		b.buf = b.buf[n:]
		return n, nil
	}
	return b.r.Read(p)
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, name)
	if target != root && !isWithinRoot(root, target) {
		return "", apperr.Newf(apperr.CodeFSUnsafePath, "tar entry %q escapes build context", name)
	}
	return target, nil
}

func isWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

func copyIntoRootfs(contextDir, rootfsDir, source, target string) error {
	srcPath, err := safeJoin(contextDir, source)
	if err != nil {
		return err
	}
	dstPath, err := safeJoin(rootfsDir, target)
	if err != nil {
		return err
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.Walk(srcPath, func(path string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, err := filepath.Rel(srcPath, path)
			if err != nil {
				return err
			}
			dest := filepath.Join(dstPath, rel)
			if fi.IsDir() {
				return os.MkdirAll(dest, fi.Mode())
			}
			return copyFile(path, dest, fi.Mode())
		})
	}
	return copyFile(srcPath, dstPath, info.Mode())
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func tarDirectory(root string) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gzipBytes wraps data in a gzip stream, matching the format
// composer.unpackLayer expects every stored layer blob to be in, registry-
// pulled or built.
func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
