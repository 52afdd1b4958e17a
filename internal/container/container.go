package container

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/IvanShishkin/clamjuice/internal/filesystem"
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// Internal hooks for testing
var (
	lookPathFunc = exec.LookPath
	execCmdFunc  = exec.CommandContext
)

// DefaultSigtool is the ClamAV utility used to unpack CVD/CLD containers
const DefaultSigtool = "sigtool"

// Extractor unpacks a signature container into a working directory
type Extractor interface {
	// Extract writes the container's files into dst, which must exist
	Extract(ctx context.Context, dst string) error

	// Source returns the input path being extracted
	Source() string
}

// Options configures Open
type Options struct {
	SigtoolPath string
	Logger      *zap.Logger
}

// Open returns the extractor suited to input: directories and plain
// signature files are copied, anything else is unpacked with sigtool.
func Open(input string, opts Options) (Extractor, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to access input: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if info.IsDir() {
		return &Directory{Path: abs, logger: logger}, nil
	}
	if _, err := models.ParseFormat(filepath.Ext(abs)); err == nil {
		return &Directory{Path: abs, logger: logger}, nil
	}

	return NewSigtool(abs, opts.SigtoolPath, logger), nil
}

// Sigtool unpacks CVD/CLD/CUD containers by running "sigtool --unpack"
type Sigtool struct {
	Path   string
	Binary string
	logger *zap.Logger
}

// NewSigtool creates a sigtool extractor for the container at path
func NewSigtool(path, binary string, logger *zap.Logger) *Sigtool {
	if binary == "" {
		binary = DefaultSigtool
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sigtool{Path: path, Binary: binary, logger: logger}
}

// Source returns the container path
func (s *Sigtool) Source() string {
	return s.Path
}

// Extract runs sigtool with dst as its working directory
func (s *Sigtool) Extract(ctx context.Context, dst string) error {
	bin, err := lookPathFunc(s.Binary)
	if err != nil {
		return fmt.Errorf("%s not found (install clamav-tools or set sigtool_path): %w", s.Binary, err)
	}

	abs, err := filepath.Abs(s.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve container path: %w", err)
	}

	s.logger.Debug("Unpacking container",
		zap.String("container", abs),
		zap.String("sigtool", bin),
		zap.String("dir", dst),
	)

	var stderr bytes.Buffer
	cmd := execCmdFunc(ctx, bin, "--unpack", abs)
	cmd.Dir = dst
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("sigtool --unpack %s failed: %w: %s", abs, err, msg)
		}
		return fmt.Errorf("sigtool --unpack %s failed: %w", abs, err)
	}

	return nil
}

// Directory copies an already unpacked database, or a single signature file,
// into the working directory
type Directory struct {
	Path   string
	logger *zap.Logger
}

// Source returns the input path
func (d *Directory) Source() string {
	return d.Path
}

// Extract copies every regular file below Path into dst
func (d *Directory) Extract(ctx context.Context, dst string) error {
	info, err := os.Stat(d.Path)
	if err != nil {
		return fmt.Errorf("failed to access input: %w", err)
	}

	if !info.IsDir() {
		_, err := filesystem.CopyFile(d.Path, filepath.Join(dst, filepath.Base(d.Path)))
		return err
	}

	var copied int
	err = filesystem.NewWalker(nil).Walk(d.Path, func(f *models.SignatureFile) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(dst, f.RelativePath)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
		}
		if _, err := filesystem.CopyFile(f.Path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return err
	}

	if d.logger != nil {
		d.logger.Debug("Copied database directory",
			zap.String("source", d.Path),
			zap.Int("files", copied),
		)
	}
	return nil
}
