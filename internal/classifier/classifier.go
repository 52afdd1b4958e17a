package classifier

import "strings"

// Generic is the tag of a signature name without a known platform prefix
const Generic = "generic"

// DefaultPrefixes are the platform prefixes used by the ClamAV naming scheme
var DefaultPrefixes = []string{
	"Win", "Doc", "Xls", "Ppt", "Rtf", "Pdf", "Html", "Unix", "Linux", "Osx",
	"Andr", "Java", "Swf", "Email", "Img", "Js", "Multios", "Txt", "Xml", "Dos",
}

// Classifier derives a platform tag from a signature name
type Classifier struct {
	prefixes map[string]struct{}
}

// New creates a classifier for the given prefixes. Matching is case-sensitive.
func New(prefixes []string) *Classifier {
	set := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = struct{}{}
		}
	}
	return &Classifier{prefixes: set}
}

// Default returns a classifier for DefaultPrefixes
func Default() *Classifier {
	return New(DefaultPrefixes)
}

// Classify returns the platform tag of name: the segment before the first
// period when it is a known prefix, Generic otherwise. Only the first segment
// is considered.
func (c *Classifier) Classify(name string) string {
	prefix, _, found := strings.Cut(name, ".")
	if !found {
		return Generic
	}
	if _, ok := c.prefixes[prefix]; ok {
		return prefix
	}
	return Generic
}

// Known reports whether tag is a configured prefix
func (c *Classifier) Known(tag string) bool {
	_, ok := c.prefixes[tag]
	return ok
}

// Prefixes returns the configured prefixes in no particular order
func (c *Classifier) Prefixes() []string {
	out := make([]string, 0, len(c.prefixes))
	for p := range c.prefixes {
		out = append(out, p)
	}
	return out
}
