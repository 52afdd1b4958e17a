package signatures

import (
	"strconv"
	"strings"

	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// MaxNDBType is the highest NDB target type code accepted by the parser
const MaxNDBType = 12

// Grammar describes the field layout of one signature format and converts
// between raw lines and Signature records
type Grammar interface {
	// Format returns the format this grammar describes
	Format() models.Format

	// Delimiter returns the field separator
	Delimiter() string

	// MinFields and MaxFields bound the number of fields in a valid line
	MinFields() int
	MaxFields() int

	// NameIndex returns the position of the name field in a line with n fields
	NameIndex(n int) int

	// TypeIndex returns the position of the NDB type code, or -1
	TypeIndex() int

	// Parse splits a raw line (without line terminator) into a Signature
	Parse(line string) (*models.Signature, error)

	// Serialize renders a Signature back into a raw line
	Serialize(sig *models.Signature) (string, error)
}

// fieldGrammar implements the delimiter-separated layouts shared by every
// format. Formats with a type code wrap it (see ndbGrammar).
type fieldGrammar struct {
	format    models.Format
	delim     string
	min       int
	max       int
	typeIndex int
	nameIndex func(n int) int
}

func (g *fieldGrammar) Format() models.Format { return g.format }
func (g *fieldGrammar) Delimiter() string     { return g.delim }
func (g *fieldGrammar) MinFields() int        { return g.min }
func (g *fieldGrammar) MaxFields() int        { return g.max }
func (g *fieldGrammar) TypeIndex() int        { return g.typeIndex }
func (g *fieldGrammar) NameIndex(n int) int   { return g.nameIndex(n) }

// split tokenizes line and checks the field count and name field
func (g *fieldGrammar) split(line string) ([]string, int, error) {
	tokens := strings.Split(line, g.delim)
	n := len(tokens)
	if n < g.min || n > g.max {
		return nil, 0, malformed(g.format, line, "expected %d-%d fields separated by %q, got %d", g.min, g.max, g.delim, n)
	}

	nameIdx := g.nameIndex(n)
	if tokens[nameIdx] == "" {
		return nil, 0, malformed(g.format, line, "empty signature name (field %d)", nameIdx+1)
	}
	return tokens, nameIdx, nil
}

func (g *fieldGrammar) Parse(line string) (*models.Signature, error) {
	tokens, nameIdx, err := g.split(line)
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(tokens)-1)
	fields = append(fields, tokens[:nameIdx]...)
	fields = append(fields, tokens[nameIdx+1:]...)

	return &models.Signature{
		Format: g.format,
		Name:   tokens[nameIdx],
		Fields: fields,
	}, nil
}

func (g *fieldGrammar) Serialize(sig *models.Signature) (string, error) {
	if err := g.checkRecord(sig, 1); err != nil {
		return "", err
	}
	if sig.NDBType != nil {
		return "", malformed(g.format, sig.Name, "type code present on a %s record", g.format)
	}

	n := len(sig.Fields) + 1
	tokens := make([]string, 0, n)
	nameIdx := g.nameIndex(n)
	tokens = append(tokens, sig.Fields[:nameIdx]...)
	tokens = append(tokens, sig.Name)
	tokens = append(tokens, sig.Fields[nameIdx:]...)

	return strings.Join(tokens, g.delim), nil
}

// checkRecord validates a record against the grammar before rendering it;
// derived is the number of fields held outside Fields (name, type code)
func (g *fieldGrammar) checkRecord(sig *models.Signature, derived int) error {
	if sig == nil {
		return malformed(g.format, "", "nil signature")
	}
	if sig.Format != g.format {
		return malformed(g.format, sig.Name, "record has format %s", sig.Format)
	}
	if sig.Name == "" {
		return malformed(g.format, "", "empty signature name")
	}
	n := len(sig.Fields) + derived
	if n < g.min || n > g.max {
		return malformed(g.format, sig.Name, "record has %d fields, grammar allows %d-%d", n, g.min, g.max)
	}
	return nil
}

// ndbGrammar handles Name:TargetType:Offset:HexSignature[:MinFL[:MaxFL]]
type ndbGrammar struct {
	fieldGrammar
}

func (g *ndbGrammar) Parse(line string) (*models.Signature, error) {
	tokens, _, err := g.split(line)
	if err != nil {
		return nil, err
	}

	raw := tokens[g.typeIndex]
	code, err := strconv.Atoi(raw)
	if err != nil || strconv.Itoa(code) != raw {
		return nil, malformed(g.format, line, "target type %q is not a decimal integer", raw)
	}
	if code < 0 || code > MaxNDBType {
		return nil, malformed(g.format, line, "target type %d out of range 0-%d", code, MaxNDBType)
	}

	// name is field 0 and the type code field 1, everything after is kept raw
	fields := make([]string, len(tokens)-2)
	copy(fields, tokens[2:])

	return &models.Signature{
		Format:  g.format,
		Name:    tokens[0],
		NDBType: &code,
		Fields:  fields,
	}, nil
}

func (g *ndbGrammar) Serialize(sig *models.Signature) (string, error) {
	if err := g.checkRecord(sig, 2); err != nil {
		return "", err
	}
	if sig.NDBType == nil {
		return "", malformed(g.format, sig.Name, "missing target type")
	}

	tokens := make([]string, 0, len(sig.Fields)+2)
	tokens = append(tokens, sig.Name, strconv.Itoa(*sig.NDBType))
	tokens = append(tokens, sig.Fields...)
	return strings.Join(tokens, g.delim), nil
}

func fixedIndex(i int) func(int) int {
	return func(int) int { return i }
}

var (
	ndb = &ndbGrammar{fieldGrammar{
		format:    models.FormatNDB,
		delim:     ":",
		min:       4,
		max:       6,
		typeIndex: 1,
		nameIndex: fixedIndex(0),
	}}

	// HashString:FileSize:MalwareName[:MinFL]
	hdb = &fieldGrammar{
		format:    models.FormatHDB,
		delim:     ":",
		min:       3,
		max:       4,
		typeIndex: -1,
		nameIndex: fixedIndex(2),
	}

	// PESectionSize:PESectionHash:MalwareName[:MinFL]
	mdb = &fieldGrammar{
		format:    models.FormatMDB,
		delim:     ":",
		min:       3,
		max:       4,
		typeIndex: -1,
		nameIndex: fixedIndex(2),
	}

	// Hash:MalwareName, or the sized layout Hash:FileSize:MalwareName[:MinFL]
	hsb = &fieldGrammar{
		format:    models.FormatHSB,
		delim:     ":",
		min:       2,
		max:       4,
		typeIndex: -1,
		nameIndex: func(n int) int {
			if n == 2 {
				return 1
			}
			return 2
		},
	}

	// Name;TargetDescription;LogicalExpression;Subsig0[;Subsig1...Subsig63]
	ldb = &fieldGrammar{
		format:    models.FormatLDB,
		delim:     ";",
		min:       4,
		max:       3 + 64,
		typeIndex: -1,
		nameIndex: fixedIndex(0),
	}
)

// Lookup returns the grammar registered for f
func Lookup(f models.Format) (Grammar, error) {
	switch f {
	case models.FormatNDB:
		return ndb, nil
	case models.FormatHDB:
		return hdb, nil
	case models.FormatMDB:
		return mdb, nil
	case models.FormatHSB:
		return hsb, nil
	case models.FormatLDB:
		return ldb, nil
	default:
		return nil, &models.UnknownFormatError{Name: f.String()}
	}
}
