package format

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ssargent/poreread/pkg/config"
	"github.com/ssargent/poreread/pkg/reader"
)

// Registry maps names and file extensions to formats.
type Registry struct {
	byName map[string]reader.Format
	byExt  map[string]reader.Format
}

// NewRegistry builds every built-in format from the host settings.
func NewRegistry(settings config.Formats) (*Registry, error) {
	chimera, err := NewChimera(settings.Chimera)
	if err != nil {
		return nil, err
	}
	raw, err := NewRaw(settings.Raw)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		byName: make(map[string]reader.Format),
		byExt:  make(map[string]reader.Format),
	}
	for _, f := range []reader.Format{NewABF2(), chimera, raw} {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds f. Names and extensions must be unique.
func (r *Registry) Register(f reader.Format) error {
	ext := strings.ToLower(f.Extension())
	if _, ok := r.byName[f.Name()]; ok {
		return fmt.Errorf("%w: format %s is already registered", reader.ErrConfig, f.Name())
	}
	if other, ok := r.byExt[ext]; ok {
		return fmt.Errorf("%w: extension %s of format %s is already used by %s",
			reader.ErrConfig, ext, f.Name(), other.Name())
	}
	r.byName[f.Name()] = f
	r.byExt[ext] = f
	return nil
}

// ByName returns the format called name.
func (r *Registry) ByName(name string) (reader.Format, error) {
	f, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown format %q (known: %s)", reader.ErrConfig, name, strings.Join(r.Names(), ", "))
	}
	return f, nil
}

// ForPath picks the format registered for the extension of path.
func (r *Registry) ForPath(path string) (reader.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no format is registered for extension %q of %s", reader.ErrConfig, ext, path)
	}
	return f, nil
}

// Lookup returns the named format, or the one matching the extension of path
// when name is empty.
func (r *Registry) Lookup(name, path string) (reader.Format, error) {
	if name != "" {
		return r.ByName(name)
	}
	return r.ForPath(path)
}

func settingsFingerprint(settings any) string {
	return strconv.FormatUint(xxhash.Sum64String(fmt.Sprintf("%#v", settings)), 16)
}

// Names returns the registered format names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Opener opens experiments with the formats of a registry.
type Opener struct {
	Formats *Registry
	Options []reader.Option
}

// Open opens the experiment containing seed with the format called name, or
// the format matching the extension of seed when name is empty.
func (o *Opener) Open(seed, name string) (*reader.Experiment, error) {
	f, err := o.Formats.Lookup(name, seed)
	if err != nil {
		return nil, err
	}
	return reader.Open(seed, f, o.Options...)
}
