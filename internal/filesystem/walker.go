package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// Walker walks an extracted database directory and reports every regular file
type Walker struct {
	exclude map[string]bool
}

// NewWalker creates a new filesystem walker. Entries whose name is in
// exclude are skipped (directories with their whole subtree).
func NewWalker(exclude []string) *Walker {
	// Build exclude map for fast lookup
	ex := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		ex[name] = true
	}
	return &Walker{exclude: ex}
}

// Walk recursively walks the directory tree in lexical order
func (w *Walker) Walk(root string, callback func(*models.SignatureFile) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access %s: %w", path, err)
		}

		if path != root && w.exclude[d.Name()] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = d.Name()
		}

		file := &models.SignatureFile{
			Path:         path,
			RelativePath: relPath,
			Name:         d.Name(),
			Extension:    GetExtension(path),
			Size:         info.Size(),
			ModTime:      info.ModTime(),
		}
		if f, err := models.ParseFormat(file.Extension); err == nil {
			file.Format = f
		}

		return callback(file)
	})
}

// Discover lists every file under root, signature databases first, each group
// sorted by relative path
func Discover(root string) ([]*models.SignatureFile, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", root, err)
	}

	var files []*models.SignatureFile
	err := NewWalker(nil).Walk(root, func(f *models.SignatureFile) error {
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].IsSignatureDB() != files[j].IsSignatureDB() {
			return files[i].IsSignatureDB()
		}
		return files[i].RelativePath < files[j].RelativePath
	})
	return files, nil
}

// GetExtension returns the lower-case file extension without dot
func GetExtension(path string) string {
	ext := filepath.Ext(path)
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	return strings.ToLower(ext)
}
