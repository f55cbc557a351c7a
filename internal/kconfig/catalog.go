// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// File: internal/kconfig/catalog.go
// Purpose: Builds the ordered ruleset catalog from YAML diffs and selects the
// ruleset matching a kernel release.

package kconfig

import (
	"bytes"
	_ "embed"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the catalog shipped with the binary. It is built on
// first use and shared read-only afterwards.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := LoadCatalog(defaultCatalogYAML)
		if err != nil {
			panic(errors.Wrap(err, "embedded catalog"))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Catalog holds resolved rulesets, newest first. The last entry is the base ruleset.
type Catalog struct {
	rulesets []*Ruleset
}

// Rulesets returns the rulesets in resolution order (newest first).
func (c *Catalog) Rulesets() []*Ruleset {
	out := make([]*Ruleset, len(c.rulesets))
	copy(out, c.rulesets)
	return out
}

// Base returns the fallback ruleset.
func (c *Catalog) Base() *Ruleset {
	return c.rulesets[len(c.rulesets)-1]
}

// Lookup returns the ruleset with the given name.
func (c *Catalog) Lookup(name string) (*Ruleset, bool) {
	for _, r := range c.rulesets {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Resolve returns the first ruleset whose minimum version v satisfies. When
// none does, the base ruleset is returned together with ErrUnknownRuleset.
func (c *Catalog) Resolve(v KernelVersion) (*Ruleset, error) {
	for _, r := range c.rulesets {
		if v.AtLeast(r.MinVersion) {
			return r, nil
		}
	}
	return c.Base(), errors.Wrapf(ErrUnknownRuleset, "kernel %s, using %s", v.Full, c.Base().Name)
}

// ResolveRelease parses a release string such as the output of uname -r and resolves it.
func (c *Catalog) ResolveRelease(release string) (*Ruleset, KernelVersion, error) {
	v, err := ParseVersion(release)
	if err != nil {
		return c.Base(), v, err
	}
	r, err := c.Resolve(v)
	return r, v, err
}

type catalogDoc struct {
	Rulesets []rulesetDoc `yaml:"rulesets"`
}

type rulesetDoc struct {
	Name           string            `yaml:"name"`
	MinVersion     MinVersion        `yaml:"min_version"`
	Inherit        string            `yaml:"inherit"`
	Knobs          knobsDoc          `yaml:"knobs"`
	Patterns       []patternDoc      `yaml:"patterns"`
	RemovePatterns []string          `yaml:"remove_patterns"`
	GFPFlags       map[string]string `yaml:"gfp_flags"`
	RemoveGFPFlags []string          `yaml:"remove_gfp_flags"`
}

type knobsDoc struct {
	PageAllocCostlyOrder *int     `yaml:"page_alloc_costly_order"`
	ZoneTypes            []string `yaml:"zone_types"`
	PSTableStart         *string  `yaml:"pstable_start"`
	PSTableColumns       *string  `yaml:"pstable_columns"`
	PSTableMetric        *string  `yaml:"pstable_metric"`
	ZoneInfoStart        *string  `yaml:"zoneinfo_start"`
	WatermarkStart       *string  `yaml:"watermark_start"`
	OOMCgroupMarker      *string  `yaml:"oom_cgroup_marker"`
	OOMManualMarker      *string  `yaml:"oom_manual_marker"`
}

type patternDoc struct {
	Name  string      `yaml:"name"`
	Kind  PatternKind `yaml:"kind"`
	Regex string      `yaml:"regex"`
}

// draft is the unresolved state of a ruleset while diffs are applied.
type draft struct {
	patterns []patternDoc
	flags    map[string]string
	knobs    Knobs
}

func (d *draft) clone() *draft {
	c := &draft{
		patterns: append([]patternDoc(nil), d.patterns...),
		flags:    make(map[string]string, len(d.flags)),
		knobs:    d.knobs,
	}
	c.knobs.ZoneTypes = append([]string(nil), d.knobs.ZoneTypes...)
	for k, v := range d.flags {
		c.flags[k] = v
	}
	return c
}

func defaultKnobs() Knobs {
	return Knobs{
		PageAllocCostlyOrder: 3,
		ZoneTypes:            []string{"DMA", "DMA32", "Normal", "HighMem", "Movable"},
		ZoneInfoStart:        "Node 0 DMA: ",
		WatermarkStart:       "Node 0 DMA free:",
	}
}

// LoadCatalog decodes a catalog document strictly and resolves all rulesets.
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc catalogDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrapf(ErrInvalidCatalog, "decode: %v", err)
	}
	c, err := buildCatalog(doc)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidCatalog, "%v", err)
	}
	return c, nil
}

func buildCatalog(doc catalogDoc) (*Catalog, error) {
	if len(doc.Rulesets) == 0 {
		return nil, errors.New("no rulesets")
	}

	drafts := make(map[string]*draft, len(doc.Rulesets))
	resolved := make([]*Ruleset, 0, len(doc.Rulesets))
	prev := ""

	for i, rd := range doc.Rulesets {
		if rd.Name == "" {
			return nil, errors.Errorf("ruleset #%d has no name", i)
		}
		if _, dup := drafts[rd.Name]; dup {
			return nil, errors.Errorf("duplicate ruleset %s", rd.Name)
		}

		var d *draft
		switch {
		case i == 0:
			if rd.Inherit != "" {
				return nil, errors.Errorf("base ruleset %s cannot inherit", rd.Name)
			}
			d = &draft{flags: map[string]string{}, knobs: defaultKnobs()}
		default:
			parent := rd.Inherit
			if parent == "" {
				parent = prev
			}
			p, ok := drafts[parent]
			if !ok {
				return nil, errors.Errorf("ruleset %s inherits unknown ruleset %s", rd.Name, parent)
			}
			d = p.clone()
		}

		if err := d.apply(rd); err != nil {
			return nil, errors.Wrapf(err, "ruleset %s", rd.Name)
		}
		r, err := d.resolve(rd.Name, rd.MinVersion)
		if err != nil {
			return nil, err
		}
		drafts[rd.Name] = d
		resolved = append(resolved, r)
		prev = rd.Name
	}

	c := &Catalog{rulesets: make([]*Ruleset, 0, len(resolved))}
	for i := len(resolved) - 1; i >= 0; i-- {
		c.rulesets = append(c.rulesets, resolved[i])
	}
	return c, nil
}

func (d *draft) apply(rd rulesetDoc) error {
	k := rd.Knobs
	if k.PageAllocCostlyOrder != nil {
		d.knobs.PageAllocCostlyOrder = *k.PageAllocCostlyOrder
	}
	if k.ZoneTypes != nil {
		d.knobs.ZoneTypes = append([]string(nil), k.ZoneTypes...)
	}
	setString(&d.knobs.PSTableStart, k.PSTableStart)
	setString(&d.knobs.PSTableColumns, k.PSTableColumns)
	setString(&d.knobs.PSTableMetric, k.PSTableMetric)
	setString(&d.knobs.ZoneInfoStart, k.ZoneInfoStart)
	setString(&d.knobs.WatermarkStart, k.WatermarkStart)
	setString(&d.knobs.OOMCgroupMarker, k.OOMCgroupMarker)
	setString(&d.knobs.OOMManualMarker, k.OOMManualMarker)

	for _, name := range rd.RemovePatterns {
		idx := d.patternIndex(name)
		if idx < 0 {
			return errors.Errorf("cannot remove unknown pattern %q", name)
		}
		d.patterns = append(d.patterns[:idx], d.patterns[idx+1:]...)
	}
	for _, p := range rd.Patterns {
		if p.Name == "" || p.Regex == "" {
			return errors.Errorf("pattern needs a name and a regex: %+v", p)
		}
		if idx := d.patternIndex(p.Name); idx >= 0 {
			d.patterns[idx] = p
			continue
		}
		d.patterns = append(d.patterns, p)
	}

	for _, name := range rd.RemoveGFPFlags {
		if _, ok := d.flags[name]; !ok {
			return errors.Errorf("cannot remove unknown GFP flag %q", name)
		}
		delete(d.flags, name)
	}
	for name, expr := range rd.GFPFlags {
		d.flags[name] = expr
	}
	return nil
}

func (d *draft) patternIndex(name string) int {
	for i, p := range d.patterns {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (d *draft) resolve(name string, minVersion MinVersion) (*Ruleset, error) {
	r := &Ruleset{
		Name:       name,
		MinVersion: minVersion,
		Patterns:   make([]Pattern, 0, len(d.patterns)),
		Knobs:      d.knobs,
	}
	r.Knobs.ZoneTypes = append([]string(nil), d.knobs.ZoneTypes...)

	for _, p := range d.patterns {
		re, err := compileMultiline(p.Regex)
		if err != nil {
			return nil, errors.Wrapf(err, "ruleset %s: pattern %s", name, p.Name)
		}
		r.Patterns = append(r.Patterns, Pattern{Name: p.Name, Kind: p.Kind, Regex: re})
	}

	flags, err := resolveFlags(d.flags)
	if err != nil {
		return nil, errors.Wrapf(err, "ruleset %s", name)
	}
	r.GFPFlags = flags
	r.ReverseLookup = buildReverseLookup(flags)

	if err := r.compileKnobs(); err != nil {
		return nil, err
	}
	return r, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
