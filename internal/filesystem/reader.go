package filesystem

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// AtomicFile is a temporary file that replaces its target only on Commit.
// Until then the target, if it exists, is left untouched.
type AtomicFile struct {
	*os.File
	target string
	perm   os.FileMode
	done   bool
}

// CreateAtomic opens a temporary file next to target
func CreateAtomic(target string, perm os.FileMode) (*AtomicFile, error) {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file for %s: %w", target, err)
	}
	return &AtomicFile{File: tmp, target: target, perm: perm}, nil
}

// Target returns the final path of the file
func (f *AtomicFile) Target() string {
	return f.target
}

// Commit flushes the temporary file and renames it over the target
func (f *AtomicFile) Commit() error {
	if f.done {
		return fmt.Errorf("%s: already committed or aborted", f.target)
	}
	f.done = true

	tmpName := f.Name()
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", f.target, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", f.target, err)
	}
	if err := os.Chmod(tmpName, f.perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", f.target, err)
	}
	if err := os.Rename(tmpName, f.target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", f.target, err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit, so it can
// be deferred.
func (f *AtomicFile) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	f.Close()
	return os.Remove(f.Name())
}

// CopyFile copies src to dst atomically and returns the number of bytes written
func CopyFile(src, dst string) (int64, error) {
	sourceFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer sourceFile.Close()

	info, err := sourceFile.Stat()
	if err != nil {
		return 0, err
	}

	destFile, err := CreateAtomic(dst, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	defer destFile.Abort()

	n, err := io.Copy(destFile, sourceFile)
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", src, err)
	}

	return n, destFile.Commit()
}

// HashFile returns the hex SHA-256 digest of the file at path
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashTree returns a hex SHA-256 digest over the relative paths and contents
// of every regular file under root
func HashTree(root string) (string, error) {
	files, err := Discover(root)
	if err != nil {
		return "", err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })

	h := sha256.New()
	for _, file := range files {
		sum, err := HashFile(file.Path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%s\n", filepath.ToSlash(file.RelativePath), sum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
