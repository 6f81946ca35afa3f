// Package fsutil provides filesystem helpers shared by the tool
// implementations and the change tracker.
package fsutil

import (
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path without exposing partial content.
// The data goes to a uniquely-named temp file in the target directory,
// is fsynced, chmodded to mode, and then renamed over path. Using
// os.CreateTemp avoids a name collision when concurrent calls target
// the same destination.
func AtomicWriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tf, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	tempPath := tf.Name()

	if _, err := tf.Write(data); err != nil {
		tf.Close()
		os.Remove(tempPath)
		return err
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		os.Remove(tempPath)
		return err
	}
	if err := tf.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	// CreateTemp creates files with 0600, which is too restrictive for
	// source files.
	if err := os.Chmod(tempPath, mode); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileMode returns the permission bits of path, or fallback when the
// file does not exist or cannot be stat'd.
func FileMode(path string, fallback os.FileMode) os.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return fallback
	}
	return info.Mode().Perm()
}
