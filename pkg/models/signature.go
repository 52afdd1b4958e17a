package models

// Signature is one parsed record of a signature database file
type Signature struct {
	Format Format
	// Name is the signature identifier, e.g. Win.Trojan.Agent-123
	Name string
	// NDBType is the target type code. Only NDB records carry it.
	NDBType *int
	// Fields holds every remaining raw field, in file order, excluding the
	// name and the NDB type code
	Fields []string
}

// HasNDBType reports whether the record carries an NDB target type code
func (s *Signature) HasNDBType() bool {
	return s.NDBType != nil
}
