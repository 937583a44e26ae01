package utils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CopyFile copies a file at the source path to the dest path using bufferSize
// byte chunks.
func CopyFile(source, dest string, bufferSize int) error {
	sourceFile, err := os.Open(source)
	if err != nil {
		return errors.Wrap(err, "failed opening copy source")
	}
	defer sourceFile.Close()
	destFile, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "failed creating copy destination")
	}
	defer destFile.Close()
	buf := make([]byte, bufferSize)
	for {
		n, err := sourceFile.Read(buf)
		if err != nil && err != io.EOF {
			return err
		}
		if n == 0 {
			break
		}
		if _, err := destFile.Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// MoveFile moves a file from one location to another, creating intermediate
// target directories as needed.
func MoveFile(source, target string) error {
	sourceStat, err := os.Stat(source)
	if err != nil {
		return err
	}
	if !sourceStat.Mode().IsRegular() {
		return errors.New("move source is not a regular file")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Rename(source, target); err != nil {
		return errors.Wrap(err, "move failed")
	}
	return nil
}
