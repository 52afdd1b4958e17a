package models

import (
	"errors"
	"fmt"
	"strings"
)

// Format identifies one of the line-oriented signature database grammars
type Format int

const (
	FormatNDB Format = iota + 1
	FormatHDB
	FormatMDB
	FormatHSB
	FormatLDB
)

// ErrUnknownFormat is the sentinel wrapped by UnknownFormatError
var ErrUnknownFormat = errors.New("unknown signature format")

// UnknownFormatError is returned when a file or option names a format that
// has no grammar
type UnknownFormatError struct {
	Name string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown signature format %q", e.Name)
}

func (e *UnknownFormatError) Unwrap() error {
	return ErrUnknownFormat
}

// AllFormats lists every supported format in report order
var AllFormats = []Format{FormatNDB, FormatHDB, FormatMDB, FormatHSB, FormatLDB}

// String returns the lower-case extension name of the format
func (f Format) String() string {
	switch f {
	case FormatNDB:
		return "ndb"
	case FormatHDB:
		return "hdb"
	case FormatMDB:
		return "mdb"
	case FormatHSB:
		return "hsb"
	case FormatLDB:
		return "ldb"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Valid reports whether f is one of the supported formats
func (f Format) Valid() bool {
	return f >= FormatNDB && f <= FormatLDB
}

// MarshalText implements encoding.TextMarshaler so formats render by name in
// JSON reports and map keys
func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, &UnknownFormatError{Name: f.String()}
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFormat resolves a format name or file extension. The unofficial
// companions (.ndu, .hdu, .mdu, .hsu, .ldu) share the grammar of their base
// format.
func ParseFormat(name string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), ".") {
	case "ndb", "ndu":
		return FormatNDB, nil
	case "hdb", "hdu":
		return FormatHDB, nil
	case "mdb", "mdu":
		return FormatMDB, nil
	case "hsb", "hsu":
		return FormatHSB, nil
	case "ldb", "ldu":
		return FormatLDB, nil
	default:
		return 0, &UnknownFormatError{Name: name}
	}
}
