package models

import "time"

// MalformedSample records one rejected line for diagnostics
type MalformedSample struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
	Raw    string `json:"raw"`
}

// DropCounts holds the number of dropped records per reason
type DropCounts struct {
	Platform  int `json:"platform"`
	Type      int `json:"type"`
	NDBType   int `json:"ndb_type"`
	Malformed int `json:"malformed"`
}

// Total returns the sum of every drop reason
func (d DropCounts) Total() int {
	return d.Platform + d.Type + d.NDBType + d.Malformed
}

func (d *DropCounts) add(o DropCounts) {
	d.Platform += o.Platform
	d.Type += o.Type
	d.NDBType += o.NDBType
	d.Malformed += o.Malformed
}

// FilterOutcome contains the counters for one processed signature file
type FilterOutcome struct {
	Path       string            `json:"path"`
	Format     Format            `json:"format"`
	Read       int               `json:"records_read"`
	Kept       int               `json:"records_kept"`
	Dropped    DropCounts        `json:"dropped"`
	Passed     int               `json:"comment_lines"`
	SizeBefore int64             `json:"size_before"`
	SizeAfter  int64             `json:"size_after"`
	Skipped    bool              `json:"skipped,omitempty"` // format excluded wholesale, never parsed
	Malformed  []MalformedSample `json:"malformed_samples,omitempty"`
}

// FormatSummary aggregates every file of one format
type FormatSummary struct {
	Files      int        `json:"files"`
	Read       int        `json:"records_read"`
	Kept       int        `json:"records_kept"`
	Dropped    DropCounts `json:"dropped"`
	SizeBefore int64      `json:"size_before"`
	SizeAfter  int64      `json:"size_after"`
	Skipped    bool       `json:"skipped,omitempty"`
}

// RunResults contains the aggregate statistics of a filtering run
type RunResults struct {
	// Summary
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	InputPath  string        `json:"input_path"`
	OutputPath string        `json:"output_path"`
	Profile    string        `json:"profile,omitempty"`
	Version    string        `json:"version"`

	FilesProcessed int   `json:"files_processed"`
	FilesSkipped   int   `json:"files_skipped"`
	FilesCopied    int   `json:"files_copied"`
	TotalRead      int   `json:"total_read"`
	TotalKept      int   `json:"total_kept"`
	TotalDropped   int   `json:"total_dropped"`
	TotalMalformed int   `json:"total_malformed"`
	SizeBefore     int64 `json:"size_before"`
	SizeAfter      int64 `json:"size_after"`

	Files    []*FilterOutcome          `json:"files"`
	ByFormat map[Format]*FormatSummary `json:"by_format"`

	// Set when the run was skipped because the input did not change
	Unchanged  bool   `json:"unchanged,omitempty"`
	ReportPath string `json:"report_path,omitempty"`
}

// NewRunResults creates empty results
func NewRunResults() *RunResults {
	return &RunResults{
		ByFormat: make(map[Format]*FormatSummary),
	}
}

// AddOutcome folds a file outcome into the aggregate
func (r *RunResults) AddOutcome(o *FilterOutcome) {
	r.Files = append(r.Files, o)
	if r.ByFormat == nil {
		r.ByFormat = make(map[Format]*FormatSummary)
	}

	summary, ok := r.ByFormat[o.Format]
	if !ok {
		summary = &FormatSummary{}
		r.ByFormat[o.Format] = summary
	}
	summary.Files++
	summary.Read += o.Read
	summary.Kept += o.Kept
	summary.Dropped.add(o.Dropped)
	summary.SizeBefore += o.SizeBefore
	summary.SizeAfter += o.SizeAfter
	summary.Skipped = summary.Skipped || o.Skipped

	if o.Skipped {
		r.FilesSkipped++
	} else {
		r.FilesProcessed++
	}
	r.TotalRead += o.Read
	r.TotalKept += o.Kept
	r.TotalDropped += o.Dropped.Total()
	r.TotalMalformed += o.Dropped.Malformed
	r.SizeBefore += o.SizeBefore
	r.SizeAfter += o.SizeAfter
}

// ReductionPercent returns how much smaller the output is, by record count
func (r *RunResults) ReductionPercent() float64 {
	if r.TotalRead == 0 {
		return 0
	}
	return 100 * (1 - float64(r.TotalKept)/float64(r.TotalRead))
}
