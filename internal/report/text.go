package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// generateText generates a text report
func (g *Generator) generateText(results *models.RunResults, outputFile string) error {
	var sb strings.Builder

	// Header
	sb.WriteString("=" + strings.Repeat("=", 78) + "\n")
	sb.WriteString(fmt.Sprintf("  CLAMJUICE SIGNATURE FILTER REPORT v%s\n", results.Version))
	sb.WriteString("=" + strings.Repeat("=", 78) + "\n\n")

	// Summary
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 79) + "\n")
	sb.WriteString(fmt.Sprintf("Input:            %s\n", results.InputPath))
	sb.WriteString(fmt.Sprintf("Output:           %s\n", results.OutputPath))
	if results.Profile != "" {
		sb.WriteString(fmt.Sprintf("Profile:          %s\n", results.Profile))
	}
	sb.WriteString(fmt.Sprintf("Start Time:       %s\n", results.StartTime.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("End Time:         %s\n", results.EndTime.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Duration:         %s\n", FormatDuration(results.Duration)))
	sb.WriteString(fmt.Sprintf("Files Filtered:   %d\n", results.FilesProcessed))
	sb.WriteString(fmt.Sprintf("Files Excluded:   %d\n", results.FilesSkipped))
	sb.WriteString(fmt.Sprintf("Files Copied:     %d\n", results.FilesCopied))
	sb.WriteString(fmt.Sprintf("Signatures Read:  %s\n", humanize.Comma(int64(results.TotalRead))))
	sb.WriteString(fmt.Sprintf("Signatures Kept:  %s\n", humanize.Comma(int64(results.TotalKept))))
	sb.WriteString(fmt.Sprintf("Reduction:        %.1f%%\n", results.ReductionPercent()))
	sb.WriteString(fmt.Sprintf("Size:             %s -> %s\n", humanize.Bytes(uint64(results.SizeBefore)), humanize.Bytes(uint64(results.SizeAfter))))
	sb.WriteString("\n")

	// Statistics by format
	sb.WriteString("SIGNATURES BY FORMAT\n")
	sb.WriteString(strings.Repeat("-", 79) + "\n")
	sb.WriteString(fmt.Sprintf("  %-6s %12s %12s %10s %10s %10s %10s\n", "FORMAT", "ORIGINAL", "KEPT", "PLATFORM", "TYPE", "NDB TYPE", "MALFORMED"))
	for _, row := range formatRows(results) {
		s := row.Summary
		if s.Skipped {
			sb.WriteString(fmt.Sprintf("  %-6s %s\n", strings.ToUpper(row.Format.String()), "excluded entirely"))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %-6s %12s %12s %10d %10d %10d %10d\n",
			strings.ToUpper(row.Format.String()),
			humanize.Comma(int64(s.Read)), humanize.Comma(int64(s.Kept)),
			s.Dropped.Platform, s.Dropped.Type, s.Dropped.NDBType, s.Dropped.Malformed))
	}
	sb.WriteString("\n")

	// Per-file details
	sb.WriteString("FILES\n")
	sb.WriteString(strings.Repeat("-", 79) + "\n")
	for _, f := range results.Files {
		status := fmt.Sprintf("%d/%d kept", f.Kept, f.Read)
		if f.Skipped {
			status = "excluded"
		}
		sb.WriteString(fmt.Sprintf("  %-40s %-18s %s -> %s\n", f.Path, status,
			humanize.Bytes(uint64(f.SizeBefore)), humanize.Bytes(uint64(f.SizeAfter))))
	}
	sb.WriteString("\n")

	// Malformed samples
	if results.TotalMalformed > 0 {
		sb.WriteString("MALFORMED LINES\n")
		sb.WriteString(strings.Repeat("=", 79) + "\n\n")
		for _, f := range results.Files {
			for _, s := range f.Malformed {
				sb.WriteString(fmt.Sprintf("%s:%d: %s\n", f.Path, s.Line, s.Reason))
				sb.WriteString(fmt.Sprintf("    %s\n", s.Raw))
			}
		}
		sb.WriteString("\n")
	}

	// Footer
	sb.WriteString(strings.Repeat("=", 79) + "\n")
	sb.WriteString(fmt.Sprintf("DatabaseDirectory %s\n", results.OutputPath))
	sb.WriteString(strings.Repeat("=", 79) + "\n")

	// Write to file
	return os.WriteFile(outputFile, []byte(sb.String()), 0644)
}
