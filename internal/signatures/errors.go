package signatures

import (
	"errors"
	"fmt"

	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// ErrMalformedRecord is the sentinel wrapped by MalformedRecordError
var ErrMalformedRecord = errors.New("malformed signature record")

// MalformedRecordError describes a line that does not fit its format's
// grammar. It is recoverable: the line is dropped and counted.
type MalformedRecordError struct {
	Format models.Format
	Reason string
	Raw    string
	// Path and Line are filled in by the caller that knows them
	Path string
	Line int
}

func (e *MalformedRecordError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: malformed %s record: %s", e.Path, e.Line, e.Format, e.Reason)
	}
	return fmt.Sprintf("malformed %s record: %s", e.Format, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

func malformed(f models.Format, raw, format string, args ...any) *MalformedRecordError {
	return &MalformedRecordError{
		Format: f,
		Reason: fmt.Sprintf(format, args...),
		Raw:    raw,
	}
}
