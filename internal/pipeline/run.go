package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanShishkin/clamjuice/internal/filesystem"
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// Run filters every signature database found under srcDir into dstDir and
// copies the remaining files unchanged. Files are processed concurrently up to
// Options.Workers; the first error cancels the files not yet started.
func (p *Pipeline) Run(ctx context.Context, srcDir, dstDir string) (*models.RunResults, error) {
	files, err := filesystem.Discover(srcDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	results := models.NewRunResults()
	results.StartTime = time.Now()
	results.InputPath = srcDir
	results.OutputPath = dstDir

	workers := p.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			dst := filepath.Join(dstDir, file.RelativePath)
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
			}

			if !file.IsSignatureDB() {
				if _, err := filesystem.CopyFile(file.Path, dst); err != nil {
					return err
				}
				mu.Lock()
				results.FilesCopied++
				done++
				mu.Unlock()
				return nil
			}

			outcome, err := p.ProcessFile(gctx, file.Path, dst, file.Format)
			if err != nil {
				return err
			}
			outcome.Path = file.RelativePath

			mu.Lock()
			defer mu.Unlock()
			results.AddOutcome(outcome)
			done++
			if p.opts.Progress != nil {
				p.opts.Progress(outcome, done, len(files))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results.Files, func(i, j int) bool {
		return results.Files[i].Path < results.Files[j].Path
	})

	results.EndTime = time.Now()
	results.Duration = results.EndTime.Sub(results.StartTime)
	return results, nil
}
