package signatures

import (
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// Serialize renders sig back into a line of its own format. Fields are
// written exactly as parsed; only the name and NDB type code are placed back
// at their grammar positions.
func Serialize(sig *models.Signature) (string, error) {
	if sig == nil {
		return "", malformed(0, "", "nil signature")
	}
	g, err := Lookup(sig.Format)
	if err != nil {
		return "", err
	}
	return g.Serialize(sig)
}
