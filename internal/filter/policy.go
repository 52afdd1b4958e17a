package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/IvanShishkin/clamjuice/pkg/models"
)

// ErrConflictingPolicy is the sentinel wrapped by ConflictingPolicyError
var ErrConflictingPolicy = errors.New("conflicting filter policy")

// ConflictingPolicyError is returned when a policy sets both platform lists
type ConflictingPolicyError struct {
	Include []string
	Exclude []string
}

func (e *ConflictingPolicyError) Error() string {
	return fmt.Sprintf("include platforms [%s] and exclude platforms [%s] are mutually exclusive",
		strings.Join(e.Include, ","), strings.Join(e.Exclude, ","))
}

func (e *ConflictingPolicyError) Unwrap() error {
	return ErrConflictingPolicy
}

// KeepFunc reports whether a signature name must survive every rule
type KeepFunc func(name string) bool

// Options is the mutable input of NewPolicy
type Options struct {
	IncludePlatforms []string
	ExcludePlatforms []string
	ExcludeTypes     []models.Format
	NDBTypes         []int
	AlwaysKeep       KeepFunc
}

// Policy is the resolved, read-only filter configuration of a run. It can
// only be built by NewPolicy and is safe to share between goroutines.
type Policy struct {
	include    map[string]struct{}
	exclude    map[string]struct{}
	types      map[models.Format]struct{}
	ndbTypes   map[int]struct{}
	alwaysKeep KeepFunc
}

// NewPolicy validates opts and builds a Policy
func NewPolicy(opts Options) (*Policy, error) {
	include := stringSet(opts.IncludePlatforms)
	exclude := stringSet(opts.ExcludePlatforms)
	if len(include) > 0 && len(exclude) > 0 {
		return nil, &ConflictingPolicyError{
			Include: sortedKeys(include),
			Exclude: sortedKeys(exclude),
		}
	}

	types := make(map[models.Format]struct{}, len(opts.ExcludeTypes))
	for _, f := range opts.ExcludeTypes {
		if !f.Valid() {
			return nil, &models.UnknownFormatError{Name: f.String()}
		}
		types[f] = struct{}{}
	}

	ndbTypes := make(map[int]struct{}, len(opts.NDBTypes))
	for _, code := range opts.NDBTypes {
		ndbTypes[code] = struct{}{}
	}

	keep := opts.AlwaysKeep
	if keep == nil {
		keep = func(string) bool { return false }
	}

	return &Policy{
		include:    include,
		exclude:    exclude,
		types:      types,
		ndbTypes:   ndbTypes,
		alwaysKeep: keep,
	}, nil
}

// ExcludesFormat reports whether files of format f are dropped wholesale
func (p *Policy) ExcludesFormat(f models.Format) bool {
	_, ok := p.types[f]
	return ok
}

// AlwaysKeep applies the injected always-keep predicate
func (p *Policy) AlwaysKeep(name string) bool {
	return p.alwaysKeep(name)
}

// IncludePlatforms returns the include list, sorted
func (p *Policy) IncludePlatforms() []string { return sortedKeys(p.include) }

// ExcludePlatforms returns the exclude list, sorted
func (p *Policy) ExcludePlatforms() []string { return sortedKeys(p.exclude) }

// ExcludeTypes returns the excluded formats in report order
func (p *Policy) ExcludeTypes() []models.Format {
	var out []models.Format
	for _, f := range models.AllFormats {
		if p.ExcludesFormat(f) {
			out = append(out, f)
		}
	}
	return out
}

// NDBTypes returns the NDB allow-list, sorted; empty means unrestricted
func (p *Policy) NDBTypes() []int {
	out := make([]int, 0, len(p.ndbTypes))
	for code := range p.ndbTypes {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}

// Fingerprint returns a stable textual form of the policy's set fields. The
// always-keep predicate is not part of it.
func (p *Policy) Fingerprint() string {
	types := make([]string, 0, len(p.types))
	for _, f := range p.ExcludeTypes() {
		types = append(types, f.String())
	}
	codes := make([]string, 0, len(p.ndbTypes))
	for _, c := range p.NDBTypes() {
		codes = append(codes, fmt.Sprint(c))
	}
	return fmt.Sprintf("include=%s;exclude=%s;types=%s;ndb=%s",
		strings.Join(p.IncludePlatforms(), ","),
		strings.Join(p.ExcludePlatforms(), ","),
		strings.Join(types, ","),
		strings.Join(codes, ","))
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
