package report

import (
	"encoding/json"
	"os"

	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// JSONReport adds derived figures to the run results for JSON output
type JSONReport struct {
	*models.RunResults
	ReductionPercent float64 `json:"reduction_percent"`
	DurationText     string  `json:"duration_text"`
}

// generateJSON generates a JSON report
func (g *Generator) generateJSON(results *models.RunResults, outputFile string) error {
	report := &JSONReport{
		RunResults:       results,
		ReductionPercent: results.ReductionPercent(),
		DurationText:     FormatDuration(results.Duration),
	}

	// Convert results to JSON
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	// Write to file
	return os.WriteFile(outputFile, data, 0644)
}
