package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// generateMarkdown generates a Markdown report
func (g *Generator) generateMarkdown(results *models.RunResults, outputFile string) error {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# ClamJuice Signature Filter Report v%s\n\n", results.Version))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Input | `%s` |\n", results.InputPath))
	sb.WriteString(fmt.Sprintf("| Output | `%s` |\n", results.OutputPath))
	if results.Profile != "" {
		sb.WriteString(fmt.Sprintf("| Profile | %s |\n", results.Profile))
	}
	sb.WriteString(fmt.Sprintf("| Start Time | %s |\n", results.StartTime.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("| Duration | %s |\n", FormatDuration(results.Duration)))
	sb.WriteString(fmt.Sprintf("| Files Filtered | %d |\n", results.FilesProcessed))
	sb.WriteString(fmt.Sprintf("| Files Excluded | %d |\n", results.FilesSkipped))
	sb.WriteString(fmt.Sprintf("| Files Copied | %d |\n", results.FilesCopied))
	sb.WriteString(fmt.Sprintf("| Size | %s → %s |\n", humanize.Bytes(uint64(results.SizeBefore)), humanize.Bytes(uint64(results.SizeAfter))))
	sb.WriteString(fmt.Sprintf("| **Signatures Kept** | **%s of %s (%.1f%% removed)** |\n",
		humanize.Comma(int64(results.TotalKept)), humanize.Comma(int64(results.TotalRead)), results.ReductionPercent()))
	sb.WriteString("\n")

	// Statistics by format
	sb.WriteString("## Signatures by Format\n\n")
	sb.WriteString("| Format | Original | Kept | Platform | Type | NDB Type | Malformed |\n")
	sb.WriteString("|--------|----------|------|----------|------|----------|-----------|\n")
	for _, row := range formatRows(results) {
		s := row.Summary
		name := strings.ToUpper(row.Format.String())
		if s.Skipped {
			sb.WriteString(fmt.Sprintf("| %s | excluded | - | - | - | - | - |\n", name))
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %d | %d |\n", name,
			humanize.Comma(int64(s.Read)), humanize.Comma(int64(s.Kept)),
			s.Dropped.Platform, s.Dropped.Type, s.Dropped.NDBType, s.Dropped.Malformed))
	}
	sb.WriteString("\n")

	// Malformed samples
	if results.TotalMalformed > 0 {
		sb.WriteString("## Malformed Lines\n\n")
		for _, f := range results.Files {
			if len(f.Malformed) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("### `%s` (%d dropped)\n\n", f.Path, f.Dropped.Malformed))
			for _, s := range f.Malformed {
				sb.WriteString(fmt.Sprintf("- line %d: %s\n", s.Line, s.Reason))
			}
			sb.WriteString("\n")
		}
	}

	// Deployment
	sb.WriteString("## Deployment\n\n")
	sb.WriteString("Add to `/etc/clamav/clamd.conf`:\n\n")
	sb.WriteString("```\n")
	sb.WriteString(fmt.Sprintf("DatabaseDirectory %s\n", results.OutputPath))
	sb.WriteString("```\n")

	return os.WriteFile(outputFile, []byte(sb.String()), 0644)
}
