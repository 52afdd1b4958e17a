package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/IvanShishkin/clamjuice/internal/classifier"
	"github.com/IvanShishkin/clamjuice/internal/config"
	"github.com/IvanShishkin/clamjuice/internal/container"
	"github.com/IvanShishkin/clamjuice/internal/filesystem"
	"github.com/IvanShishkin/clamjuice/internal/filter"
	"github.com/IvanShishkin/clamjuice/internal/history"
	"github.com/IvanShishkin/clamjuice/internal/pipeline"
	"github.com/IvanShishkin/clamjuice/internal/profiles"
	"github.com/IvanShishkin/clamjuice/internal/report"
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// Version is reported in run results and reports
var Version = "1.0.0"

// ProgressCallback is called to report run progress
type ProgressCallback func(phase string, current, total int, message string)

// ExtractorFunc returns the extractor for an input path
type ExtractorFunc func(input string) (container.Extractor, error)

// Runner drives one filtering run: policy resolution, extraction, filtering,
// history and reporting
type Runner struct {
	config           *config.Config
	logger           *zap.Logger
	table            *profiles.Table
	extractor        ExtractorFunc
	console          io.Writer
	progressCallback ProgressCallback
}

// NewRunner creates a new runner instance
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		config:  cfg,
		logger:  logger,
		console: os.Stdout,
	}
	r.extractor = func(input string) (container.Extractor, error) {
		return container.Open(input, container.Options{
			SigtoolPath: cfg.SigtoolPath,
			Logger:      logger,
		})
	}
	return r
}

// SetProgressCallback sets the progress callback function
func (r *Runner) SetProgressCallback(cb ProgressCallback) {
	r.progressCallback = cb
}

// SetExtractor replaces the container extractor factory
func (r *Runner) SetExtractor(fn ExtractorFunc) {
	r.extractor = fn
}

// SetConsole sets where the console summary is printed; nil disables it
func (r *Runner) SetConsole(w io.Writer) {
	r.console = w
}

func (r *Runner) reportProgress(phase string, current, total int, message string) {
	if r.progressCallback != nil {
		r.progressCallback(phase, current, total, message)
	}
}

// Profiles returns the profile table, loading it on first use
func (r *Runner) Profiles() (*profiles.Table, error) {
	if r.table != nil {
		return r.table, nil
	}
	table, err := profiles.LoadTable(r.config.ProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	r.table = table
	return table, nil
}

// Policy resolves the configured profile and flags into a filter policy and
// an engine classifying against the known platform prefixes
func (r *Runner) Policy() (*filter.Policy, *filter.Engine, error) {
	table, err := r.Profiles()
	if err != nil {
		return nil, nil, err
	}

	opts, err := profiles.Resolve(table, r.config.Profile, profiles.Overrides{
		ExcludePlatforms: r.config.ExcludePlatforms,
		IncludePlatforms: r.config.IncludePlatforms,
		ExcludeTypes:     r.config.ExcludeTypes,
		NDBTypes:         r.config.NDBTypes,
	})
	if err != nil {
		return nil, nil, err
	}

	matcher, err := filter.NewNameMatcher(r.config.AlwaysKeep, r.config.AlwaysKeepRegex)
	if err != nil {
		return nil, nil, err
	}
	if !matcher.Empty() {
		opts.AlwaysKeep = matcher.Match
	}

	policy, err := filter.NewPolicy(opts)
	if err != nil {
		return nil, nil, err
	}

	for _, name := range table.UnknownPlatforms(append(policy.IncludePlatforms(), policy.ExcludePlatforms()...)) {
		r.logger.Warn("Unknown platform prefix, it will match no signature", zap.String("platform", name))
	}

	return policy, filter.NewEngine(classifier.New(table.Platforms())), nil
}

// Run filters the database at input into the output directory
func (r *Runner) Run(ctx context.Context, input, output string) (*models.RunResults, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	// Resolve the policy before any file is touched
	policy, engine, err := r.Policy()
	if err != nil {
		return nil, err
	}

	output, err = filepath.Abs(output)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}

	r.logger.Info("Starting filter run",
		zap.String("input", input),
		zap.String("output", output),
		zap.String("profile", r.config.Profile),
		zap.String("policy", policy.Fingerprint()))

	var hist *history.DB
	if r.config.HistoryDB != "" {
		hist, err = history.Open(r.config.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		defer hist.Close()
	}

	extractor, err := r.extractor(input)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "clamjuice-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)
	r.logger.Debug("Using temporary directory", zap.String("dir", workDir))

	r.reportProgress("extract", 0, 0, fmt.Sprintf("Unpacking %s", extractor.Source()))
	if err := extractor.Extract(ctx, workDir); err != nil {
		return nil, err
	}

	digest, err := filesystem.HashTree(workDir)
	if err != nil {
		return nil, err
	}

	if r.config.SkipUnchanged && hist != nil {
		latest, err := hist.Latest(ctx, output)
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
		if latest.Matches(digest, r.fingerprint(policy)) && dirExists(output) {
			r.logger.Info("Input unchanged since last run, skipping",
				zap.Int64("run", latest.ID),
				zap.String("digest", digest))

			results := models.NewRunResults()
			results.InputPath = input
			results.OutputPath = output
			results.Profile = r.config.Profile
			results.Version = Version
			results.Unchanged = true
			if err := r.generateReport(results); err != nil {
				return results, err
			}
			return results, nil
		}
	}

	samples := r.config.KeepMalformedSamples
	if samples == 0 {
		samples = -1
	}
	p, err := pipeline.New(engine, policy, pipeline.Options{
		Workers:          r.config.Workers,
		MalformedSamples: samples,
		Progress: func(o *models.FilterOutcome, done, total int) {
			r.logger.Debug("Filtered file",
				zap.String("file", o.Path),
				zap.Stringer("format", o.Format),
				zap.Int("read", o.Read),
				zap.Int("kept", o.Kept),
				zap.Int("malformed", o.Dropped.Malformed),
				zap.Bool("excluded", o.Skipped))
			r.reportProgress("filter", done, total, o.Path)
		},
	})
	if err != nil {
		return nil, err
	}

	results, err := p.Run(ctx, workDir, output)
	if err != nil {
		return nil, err
	}
	results.InputPath = input
	results.Profile = r.config.Profile
	results.Version = Version

	for _, f := range results.Files {
		if f.Dropped.Malformed > 0 {
			r.logger.Warn("Malformed signatures dropped",
				zap.String("file", f.Path),
				zap.Int("count", f.Dropped.Malformed))
		}
	}

	if hist != nil {
		_, err := hist.Record(ctx, &history.Run{
			StartedAt:   results.StartTime,
			Duration:    results.Duration,
			InputPath:   input,
			InputDigest: digest,
			OutputPath:  output,
			Profile:     r.config.Profile,
			Policy:      r.fingerprint(policy),
			Read:        results.TotalRead,
			Kept:        results.TotalKept,
			Dropped:     results.TotalDropped,
			Malformed:   results.TotalMalformed,
			SizeBefore:  results.SizeBefore,
			SizeAfter:   results.SizeAfter,
		})
		if err != nil {
			// output is already committed
			r.logger.Error("Failed to record run", zap.Error(err))
		}
	}

	if err := r.generateReport(results); err != nil {
		return results, err
	}

	r.logger.Info("Filter run completed",
		zap.Duration("duration", results.Duration),
		zap.Int("read", results.TotalRead),
		zap.Int("kept", results.TotalKept),
		zap.Int("malformed", results.TotalMalformed))

	return results, nil
}

func (r *Runner) generateReport(results *models.RunResults) error {
	reporter, err := report.NewGenerator(r.config, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize report generator: %w", err)
	}
	reporter.Console = r.console

	reportPath, err := reporter.Generate(results)
	if err != nil {
		r.logger.Error("Failed to generate report", zap.Error(err))
		return err
	}
	results.ReportPath = reportPath
	return nil
}

// fingerprint identifies everything that decides the output of a run
func (r *Runner) fingerprint(policy *filter.Policy) string {
	return fmt.Sprintf("%s;keep=%s;keep_regex=%s", policy.Fingerprint(),
		strings.Join(r.config.AlwaysKeep, ","), strings.Join(r.config.AlwaysKeepRegex, ","))
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
