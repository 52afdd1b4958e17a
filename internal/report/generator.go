package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/IvanShishkin/clamjuice/internal/config"
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorOrange = "\033[38;5;208m"
	colorGray   = "\033[38;5;245m"
)

// FormatDuration formats duration to a human-readable string with max 2 decimal places
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		// Milliseconds
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	} else if d < time.Minute {
		// Seconds
		return fmt.Sprintf("%.2fs", d.Seconds())
	} else if d < time.Hour {
		// Minutes and seconds
		mins := int(d.Minutes())
		secs := d.Seconds() - float64(mins*60)
		return fmt.Sprintf("%dm%.2fs", mins, secs)
	}
	// Hours, minutes and seconds
	hours := int(d.Hours())
	mins := int(d.Minutes()) - hours*60
	secs := d.Seconds() - float64(hours*3600) - float64(mins*60)
	return fmt.Sprintf("%dh%dm%.2fs", hours, mins, secs)
}

// Generator generates run reports in various formats
type Generator struct {
	config *config.Config
	logger *zap.Logger

	// Console receives the console summary
	Console io.Writer
	// Color enables ANSI colors on the console
	Color bool
}

// NewGenerator creates a new report generator
func NewGenerator(cfg *config.Config, logger *zap.Logger) (*Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("report: nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		config:  cfg,
		logger:  logger,
		Console: os.Stdout,
		Color:   true,
	}, nil
}

// Generate prints the console summary and, when a report format is
// configured, writes the report file and returns its absolute path
func (g *Generator) Generate(results *models.RunResults) (string, error) {
	g.printConsole(results)

	format := g.config.ReportFormat
	if format == "" {
		return "", nil
	}

	outputFile := g.config.OutputFile
	if outputFile == "" {
		outputFile = DefaultFileName(format, time.Now())
		if outputFile == "" {
			return "", fmt.Errorf("unknown report format: %s", format)
		}
	}

	g.logger.Info("Generating report",
		zap.String("format", format),
		zap.String("output", outputFile))

	var err error
	switch format {
	case "json":
		err = g.generateJSON(results, outputFile)
	case "txt", "text":
		err = g.generateText(results, outputFile)
	case "md", "markdown":
		err = g.generateMarkdown(results, outputFile)
	default:
		return "", fmt.Errorf("unknown report format: %s", format)
	}

	if err != nil {
		return "", fmt.Errorf("failed to generate %s report: %w", format, err)
	}

	// Get absolute path
	absPath, _ := filepath.Abs(outputFile)
	return absPath, nil
}

// DefaultFileName returns the report name used when no output file is set
func DefaultFileName(format string, now time.Time) string {
	timestamp := now.Format("20060102-150405")
	switch format {
	case "json":
		return fmt.Sprintf("CLAMJUICE-REPORT-%s.json", timestamp)
	case "txt", "text":
		return fmt.Sprintf("CLAMJUICE-REPORT-%s.txt", timestamp)
	case "md", "markdown":
		return fmt.Sprintf("CLAMJUICE-REPORT-%s.md", timestamp)
	default:
		return ""
	}
}

func (g *Generator) c(code string) string {
	if !g.Color {
		return ""
	}
	return code
}

// printConsole prints the statistics block and the deployment hint
func (g *Generator) printConsole(results *models.RunResults) {
	w := g.Console
	if w == nil {
		return
	}
	reset, gray, bold := g.c(colorReset), g.c(colorGray), g.c(colorBold)

	fmt.Fprintln(w)
	if results.Unchanged {
		fmt.Fprintf(w, "%s%sINPUT UNCHANGED%s\n\n", bold, g.c(colorYellow), reset)
		fmt.Fprintf(w, "  Input and policy match the last run, %s left as is.\n\n", results.OutputPath)
		return
	}

	fmt.Fprintf(w, "%s%sFILTERING STATISTICS%s\n", bold, g.c(colorOrange), reset)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %sInput:%s     %s\n", gray, reset, results.InputPath)
	if results.Profile != "" {
		fmt.Fprintf(w, "  %sProfile:%s   %s\n", gray, reset, results.Profile)
	}
	fmt.Fprintf(w, "  %sFiles:%s     %d filtered, %d excluded, %d copied\n", gray, reset,
		results.FilesProcessed, results.FilesSkipped, results.FilesCopied)
	fmt.Fprintf(w, "  %sDuration:%s  %s\n", gray, reset, FormatDuration(results.Duration))

	for _, row := range formatRows(results) {
		fmt.Fprintf(w, "\n  %s.%s files:%s\n", bold, strings.ToUpper(row.Format.String()), reset)
		if row.Summary.Skipped {
			fmt.Fprintf(w, "    %sExcluded entirely%s\n", g.c(colorDim), reset)
			continue
		}
		writeCounts(w, "    ", row.Summary.Read, row.Summary.Kept)
	}

	if results.TotalRead > 0 {
		fmt.Fprintf(w, "\n  %sTOTAL:%s\n", bold, reset)
		writeCounts(w, "    ", results.TotalRead, results.TotalKept)
	}
	fmt.Fprintf(w, "    Size:      %s -> %s\n", humanize.Bytes(uint64(results.SizeBefore)), humanize.Bytes(uint64(results.SizeAfter)))

	if results.TotalMalformed > 0 {
		fmt.Fprintf(w, "\n  %s%s⚠ %s malformed lines dropped%s\n", bold, g.c(colorRed), humanize.Comma(int64(results.TotalMalformed)), reset)
		for _, f := range results.Files {
			for _, s := range f.Malformed {
				fmt.Fprintf(w, "    %s%s:%d%s %s\n", gray, f.Path, s.Line, reset, s.Reason)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s%s✓ Filtered database deployed to:%s %s\n", bold, g.c(colorGreen), reset, results.OutputPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "To use with ClamAV, add to /etc/clamav/clamd.conf:")
	fmt.Fprintf(w, "  DatabaseDirectory %s\n", results.OutputPath)
	fmt.Fprintln(w)
}

func writeCounts(w io.Writer, indent string, read, kept int) {
	removed := read - kept
	fmt.Fprintf(w, "%sOriginal:  %12s signatures\n", indent, humanize.Comma(int64(read)))
	fmt.Fprintf(w, "%sFiltered:  %12s signatures (%5.1f%%)\n", indent, humanize.Comma(int64(kept)), percent(kept, read))
	fmt.Fprintf(w, "%sRemoved:   %12s signatures (%5.1f%% reduction)\n", indent, humanize.Comma(int64(removed)), percent(removed, read))
}

type formatRow struct {
	Format  models.Format
	Summary *models.FormatSummary
}

// formatRows returns the per-format summaries in report order
func formatRows(results *models.RunResults) []formatRow {
	var rows []formatRow
	for _, f := range models.AllFormats {
		if s, ok := results.ByFormat[f]; ok {
			rows = append(rows, formatRow{Format: f, Summary: s})
		}
	}
	return rows
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}
