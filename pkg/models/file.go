package models

import (
	"time"
)

// SignatureFile is a file discovered in an extracted database directory
type SignatureFile struct {
	Path         string    // Full file path
	RelativePath string    // Path relative to the extraction root
	Name         string    // File name
	Extension    string    // File extension (without dot)
	Format       Format    // Zero when the file is not a filterable database
	Size         int64     // File size in bytes
	ModTime      time.Time // Modification time
}

// IsSignatureDB reports whether the file has a known grammar
func (f *SignatureFile) IsSignatureDB() bool {
	return f.Format.Valid()
}
