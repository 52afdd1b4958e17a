package profiles

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/IvanShishkin/clamjuice/internal/classifier"
	"github.com/IvanShishkin/clamjuice/internal/filter"
	"github.com/IvanShishkin/clamjuice/internal/signatures"
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

//go:embed builtin.yaml
var builtinYAML []byte

var (
	// ErrUnknownProfile is returned when a profile name is not in the table
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrNoFilter is returned when neither a profile nor a filter flag is given
	ErrNoFilter = errors.New("no filter specified: use a profile, platform filters or excluded types")
)

// Profile is a named, predefined filter policy
type Profile struct {
	Name             string   `yaml:"-"`
	Description      string   `yaml:"description"`
	ExcludePlatforms []string `yaml:"exclude_platforms"`
	IncludePlatforms []string `yaml:"include_platforms"`
	ExcludeTypes     []string `yaml:"exclude_types"`
	NDBTypes         []int    `yaml:"ndb_types"`
}

// File represents a YAML profile file
type File struct {
	Platforms []string            `yaml:"platforms"`
	Profiles  map[string]*Profile `yaml:"profiles"`
}

// Table holds every known profile and platform prefix. It is built once at
// startup and not modified afterwards.
type Table struct {
	profiles  map[string]*Profile
	platforms []string
}

// Builtin returns the table of built-in profiles
func Builtin() (*Table, error) {
	t := &Table{profiles: make(map[string]*Profile)}
	if err := t.merge(builtinYAML, "builtin.yaml"); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTable returns the built-in table extended by the YAML files found at
// paths. A path may be a file or a directory; missing paths are ignored.
// User profiles replace built-in ones of the same name.
func LoadTable(paths ...string) (*Table, error) {
	t, err := Builtin()
	if err != nil {
		return nil, err
	}

	for _, root := range paths {
		if root == "" {
			continue
		}
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}

		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}

			// Skip directories and non-YAML files
			ext := filepath.Ext(path)
			if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
				return nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return t.merge(data, path)
		})
		if err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Table) merge(data []byte, source string) error {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to load %s: %w", source, err)
	}

	for name, p := range f.Profiles {
		if p == nil {
			p = &Profile{}
		}
		p.Name = name
		if err := p.validate(); err != nil {
			return fmt.Errorf("failed to load %s: %w", source, err)
		}
		t.profiles[name] = p
	}

	seen := make(map[string]bool, len(t.platforms))
	for _, prefix := range t.platforms {
		seen[prefix] = true
	}
	for _, prefix := range f.Platforms {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && !seen[prefix] {
			seen[prefix] = true
			t.platforms = append(t.platforms, prefix)
		}
	}
	return nil
}

func (p *Profile) validate() error {
	if _, err := parseFormats(p.ExcludeTypes); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if err := checkNDBTypes(p.NDBTypes); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return nil
}

// Get returns the named profile
func (t *Table) Get(name string) (*Profile, bool) {
	p, ok := t.profiles[name]
	return p, ok
}

// Names returns the profile names in sorted order
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profiles returns every profile sorted by name
func (t *Table) Profiles() []*Profile {
	names := t.Names()
	out := make([]*Profile, len(names))
	for i, name := range names {
		out[i] = t.profiles[name]
	}
	return out
}

// Platforms returns the known platform prefixes
func (t *Table) Platforms() []string {
	return append([]string(nil), t.platforms...)
}

// UnknownPlatforms returns the entries of names that are not known prefixes.
// Such entries are legal but match nothing.
func (t *Table) UnknownPlatforms(names []string) []string {
	known := make(map[string]bool, len(t.platforms))
	for _, prefix := range t.platforms {
		known[prefix] = true
	}

	var unknown []string
	for _, name := range names {
		if name != "" && name != classifier.Generic && !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Overrides holds filter settings given explicitly by the user. An empty
// field is "not set"; a set field replaces the profile's value.
type Overrides struct {
	ExcludePlatforms []string
	IncludePlatforms []string
	ExcludeTypes     []string
	NDBTypes         []int
}

func (o Overrides) selectsFilter() bool {
	return len(o.ExcludePlatforms) > 0 || len(o.IncludePlatforms) > 0 || len(o.ExcludeTypes) > 0
}

// Resolve merges the named profile (optional) with the overrides into filter
// options. The always-keep predicate is left for the caller to set.
func Resolve(t *Table, name string, o Overrides) (filter.Options, error) {
	var opts filter.Options

	if name == "" && !o.selectsFilter() {
		return opts, ErrNoFilter
	}

	var excludeTypes []string
	if name != "" {
		p, ok := t.Get(name)
		if !ok {
			return opts, fmt.Errorf("%w: %s (available: %s)", ErrUnknownProfile, name, strings.Join(t.Names(), ", "))
		}
		opts.ExcludePlatforms = append(opts.ExcludePlatforms, p.ExcludePlatforms...)
		opts.IncludePlatforms = append(opts.IncludePlatforms, p.IncludePlatforms...)
		opts.NDBTypes = append(opts.NDBTypes, p.NDBTypes...)
		excludeTypes = p.ExcludeTypes
	}

	if len(o.ExcludePlatforms) > 0 {
		opts.ExcludePlatforms = trimAll(o.ExcludePlatforms)
	}
	if len(o.IncludePlatforms) > 0 {
		opts.IncludePlatforms = trimAll(o.IncludePlatforms)
	}
	if len(o.NDBTypes) > 0 {
		if err := checkNDBTypes(o.NDBTypes); err != nil {
			return opts, err
		}
		opts.NDBTypes = o.NDBTypes
	}
	if len(o.ExcludeTypes) > 0 {
		excludeTypes = o.ExcludeTypes
	}

	formats, err := parseFormats(excludeTypes)
	if err != nil {
		return opts, err
	}
	opts.ExcludeTypes = formats

	return opts, nil
}

func parseFormats(names []string) ([]models.Format, error) {
	var formats []models.Format
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		f, err := models.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}

func checkNDBTypes(types []int) error {
	for _, code := range types {
		if code < 0 || code > signatures.MaxNDBType {
			return fmt.Errorf("ndb type %d out of range 0-%d", code, signatures.MaxNDBType)
		}
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
