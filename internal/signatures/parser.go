package signatures

import (
	"strings"

	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// Parse splits a raw line of format f into a Signature. The line must not
// carry its terminator. A line that does not fit the grammar yields a
// *MalformedRecordError; an unsupported format yields
// *models.UnknownFormatError.
func Parse(line string, f models.Format) (*models.Signature, error) {
	g, err := Lookup(f)
	if err != nil {
		return nil, err
	}
	return g.Parse(line)
}

// IsPassthrough reports whether a line carries no record (blank or comment)
// and must be copied as is
func IsPassthrough(line string) bool {
	return strings.TrimSpace(line) == "" || line[0] == '#'
}
