// Package rulefile provides hardened reading of engine data files
// (trigger files, timeline scripts, strings tables).
package rulefile

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotRegularFile is returned when a data file path does not point at a
// regular file. This includes symlinks, FIFOs, devices, sockets, and
// directories; rejecting them prevents a hostile path from blocking a load
// forever.
var ErrNotRegularFile = errors.New("not a regular file")

// ErrEmptyFile is returned for zero-length data files.
var ErrEmptyFile = errors.New("file is empty")

// SanitizePathError removes the path from os.PathError so error messages do
// not expose file system paths to users.
func SanitizePathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	return err
}

// ReadLimited reads a data file of at most maxSize bytes.
//
// The path is Lstat-ed first to reject symlinks, then the open descriptor is
// stat-ed again so a file swapped in between cannot bypass the check. Reads
// go through io.LimitReader so a file growing after stat still cannot exceed
// the limit.
func ReadLimited(path string, maxSize int64) ([]byte, error) {
	linkInfo, err := os.Lstat(path)
	if err != nil {
		return nil, SanitizePathError(err)
	}
	if !linkInfo.Mode().IsRegular() {
		return nil, ErrNotRegularFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, SanitizePathError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, SanitizePathError(err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotRegularFile
	}
	if info.Size() == 0 {
		return nil, ErrEmptyFile
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, SanitizePathError(err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(data), maxSize)
	}
	return data, nil
}
