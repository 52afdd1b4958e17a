package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/IvanShishkin/clamjuice/internal/filesystem"
	"github.com/IvanShishkin/clamjuice/internal/filter"
	"github.com/IvanShishkin/clamjuice/internal/signatures"
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

const (
	// MaxLineSize bounds a single record; large LDB bodies stay well below it
	MaxLineSize = 16 * 1024 * 1024

	// DefaultMalformedSamples is the number of rejected lines kept per file
	DefaultMalformedSamples = 20

	cancelCheckInterval = 1 << 16
)

// ProgressFunc is called after each file of a run completes
type ProgressFunc func(file *models.FilterOutcome, done, total int)

// Options tunes a pipeline
type Options struct {
	// Workers bounds the number of files processed at once
	Workers int
	// MalformedSamples caps the rejected lines kept per file; negative keeps none
	MalformedSamples int
	// Progress is optional
	Progress ProgressFunc
}

// Pipeline streams signature files through parse, filter and serialize. It
// never logs; callers observe it through results and the progress callback.
type Pipeline struct {
	engine *filter.Engine
	policy *filter.Policy
	opts   Options
}

// New creates a pipeline for a resolved policy
func New(engine *filter.Engine, policy *filter.Policy, opts Options) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("pipeline: nil filter engine")
	}
	if policy == nil {
		return nil, errors.New("pipeline: nil filter policy")
	}
	if opts.MalformedSamples == 0 {
		opts.MalformedSamples = DefaultMalformedSamples
	}
	return &Pipeline{engine: engine, policy: policy, opts: opts}, nil
}

// ProcessFile filters src, a file of format f, into dst. dst is replaced only
// when the whole file was processed; on error any previous dst is kept.
func (p *Pipeline) ProcessFile(ctx context.Context, src, dst string, f models.Format) (*models.FilterOutcome, error) {
	grammar, err := signatures.Lookup(f)
	if err != nil {
		return nil, err
	}

	if p.policy.ExcludesFormat(f) {
		return p.writeExcluded(src, dst, f)
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := filesystem.CreateAtomic(dst, 0644)
	if err != nil {
		return nil, err
	}
	defer out.Abort()

	outcome := &models.FilterOutcome{
		Path:       src,
		Format:     f,
		SizeBefore: info.Size(),
	}

	w := &countingWriter{w: bufio.NewWriterSize(out, 256*1024)}
	if err := p.stream(ctx, in, w, grammar, outcome); err != nil {
		return nil, err
	}
	if err := w.w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Commit(); err != nil {
		return nil, err
	}

	outcome.SizeAfter = w.n
	return outcome, nil
}

// stream runs the per-line loop. Only one line is held at a time.
func (p *Pipeline) stream(ctx context.Context, r io.Reader, w *countingWriter, g signatures.Grammar, outcome *models.FilterOutcome) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line := scanner.Text()
		if signatures.IsPassthrough(line) {
			outcome.Passed++
			if err := w.writeLine(line); err != nil {
				return fmt.Errorf("failed to write output for %s: %w", outcome.Path, err)
			}
			continue
		}

		outcome.Read++
		sig, err := g.Parse(line)
		if err != nil {
			var mre *signatures.MalformedRecordError
			if !errors.As(err, &mre) {
				return err
			}
			mre.Path = outcome.Path
			mre.Line = lineNo
			outcome.Dropped.Malformed++
			p.sample(outcome, mre)
			continue
		}

		switch p.engine.Decide(sig, p.policy) {
		case filter.DropType:
			outcome.Dropped.Type++
			continue
		case filter.DropPlatform:
			outcome.Dropped.Platform++
			continue
		case filter.DropNDBType:
			outcome.Dropped.NDBType++
			continue
		}

		rendered, err := g.Serialize(sig)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", outcome.Path, lineNo, err)
		}
		if err := w.writeLine(rendered); err != nil {
			return fmt.Errorf("failed to write output for %s: %w", outcome.Path, err)
		}
		outcome.Kept++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s after line %d: %w", outcome.Path, lineNo, err)
	}
	return nil
}

func (p *Pipeline) sample(outcome *models.FilterOutcome, mre *signatures.MalformedRecordError) {
	if len(outcome.Malformed) >= p.opts.MalformedSamples {
		return
	}
	outcome.Malformed = append(outcome.Malformed, models.MalformedSample{
		Line:   mre.Line,
		Reason: mre.Reason,
		Raw:    truncate(mre.Raw, 200),
	})
}

// writeExcluded replaces dst with a comment-only stub without opening src
func (p *Pipeline) writeExcluded(src, dst string, f models.Format) (*models.FilterOutcome, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := filesystem.CreateAtomic(dst, 0644)
	if err != nil {
		return nil, err
	}
	defer out.Abort()

	stub := fmt.Sprintf("# %s signatures excluded entirely\n", strings.ToUpper(f.String()))
	if _, err := out.WriteString(stub); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Commit(); err != nil {
		return nil, err
	}

	return &models.FilterOutcome{
		Path:       src,
		Format:     f,
		SizeBefore: info.Size(),
		SizeAfter:  int64(len(stub)),
		Skipped:    true,
	}, nil
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (c *countingWriter) writeLine(line string) error {
	n, err := c.w.WriteString(line)
	c.n += int64(n)
	if err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	c.n++
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
