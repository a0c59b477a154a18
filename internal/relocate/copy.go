package relocate

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// renameFunc and removeFunc are swapped in tests to simulate a failing final
// rename and a failing delete of the original.
var (
	renameFunc = os.Rename
	removeFunc = os.Remove
)

// copyFile copies src to dst, preserving permission bits and modification
// time, and replaces any existing file at dst.
//
// The data is written to a dot-prefixed temporary file in dst's directory and
// renamed into place, so readers of dst see either the old or the new content.
func copyFile(src, dst string, info fs.FileInfo) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, in)
	if err != nil {
		return 0, fmt.Errorf("failed to copy data: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	// Access time is not portable through fs.FileInfo; use mtime for both.
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return 0, fmt.Errorf("failed to set times: %w", err)
	}

	if err := renameFunc(tmpName, dst); err != nil {
		return 0, fmt.Errorf("failed to move into place: %w", err)
	}
	committed = true

	return n, nil
}
