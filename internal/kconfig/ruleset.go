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

// File: internal/kconfig/ruleset.go
// Purpose: Resolved, immutable extraction rules for one range of kernel releases.

package kconfig

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

// PatternKind tags a pattern with the analysis types it applies to and
// whether a missing match is an extraction error.
type PatternKind int

const (
	AllMandatory PatternKind = iota
	AllOptional
	KernelMandatory
	KernelOptional
	CgroupMandatory
	CgroupOptional
)

var patternKindNames = map[PatternKind]string{
	AllMandatory:    "all_mandatory",
	AllOptional:     "all_optional",
	KernelMandatory: "kernel_mandatory",
	KernelOptional:  "kernel_optional",
	CgroupMandatory: "cgroup_mandatory",
	CgroupOptional:  "cgroup_optional",
}

func (k PatternKind) String() string {
	if s, ok := patternKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("PatternKind(%d)", int(k))
}

// ParsePatternKind converts the catalog spelling of a pattern kind.
func ParsePatternKind(s string) (PatternKind, error) {
	for k, name := range patternKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown pattern kind %q", s)
}

func (k PatternKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PatternKind) UnmarshalText(b []byte) error {
	v, err := ParsePatternKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Mandatory reports whether a missing match must be recorded as an error.
func (k PatternKind) Mandatory() bool {
	switch k {
	case AllMandatory, KernelMandatory, CgroupMandatory:
		return true
	case AllOptional, KernelOptional, CgroupOptional:
		return false
	}
	return false
}

// Applies reports whether patterns of this kind are evaluated for the analysis type.
func (k PatternKind) Applies(t AnalysisType) bool {
	switch k {
	case AllMandatory, AllOptional:
		return true
	case KernelMandatory, KernelOptional:
		return t != CgroupAutomatic
	case CgroupMandatory, CgroupOptional:
		return t == CgroupAutomatic
	}
	return false
}

// AnalysisType is derived from the OOM text, never declared by the caller.
type AnalysisType int

const (
	// KernelAutomatic is a system wide OOM triggered by the kernel.
	KernelAutomatic AnalysisType = iota
	// KernelManual is an OOM triggered through sysrq (order=-1).
	KernelManual
	// CgroupAutomatic is an OOM caused by a memory cgroup limit.
	CgroupAutomatic
)

func (t AnalysisType) String() string {
	switch t {
	case KernelAutomatic:
		return "kernel_automatic"
	case KernelManual:
		return "kernel_manual"
	case CgroupAutomatic:
		return "cgroup_automatic"
	}
	return fmt.Sprintf("AnalysisType(%d)", int(t))
}

func (t AnalysisType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Pattern is a named multi-line regular expression whose named groups become fields.
type Pattern struct {
	Name  string         `json:"name" yaml:"name"`
	Kind  PatternKind    `json:"kind" yaml:"kind"`
	Regex *regexp.Regexp `json:"-" yaml:"-"`
}

// Knobs are structural, per-release parameters of the OOM report layout.
type Knobs struct {
	PageAllocCostlyOrder int      `json:"page_alloc_costly_order" yaml:"page_alloc_costly_order"`
	ZoneTypes            []string `json:"zone_types" yaml:"zone_types"`
	PSTableStart         string   `json:"pstable_start" yaml:"pstable_start"`
	PSTableColumns       string   `json:"pstable_columns" yaml:"pstable_columns"`
	PSTableMetric        string   `json:"pstable_metric" yaml:"pstable_metric"`
	ZoneInfoStart        string   `json:"zoneinfo_start" yaml:"zoneinfo_start"`
	WatermarkStart       string   `json:"watermark_start" yaml:"watermark_start"`
	OOMCgroupMarker      string   `json:"oom_cgroup_marker" yaml:"oom_cgroup_marker"`
	OOMManualMarker      string   `json:"oom_manual_marker" yaml:"oom_manual_marker"`
}

// GFPFlag is one entry of the flag table. Expr holds the literal or the
// expression as written in the catalog, Value the resolved bitmask.
type GFPFlag struct {
	Expr  string `json:"expr" yaml:"expr"`
	Value uint64 `json:"value" yaml:"value"`
}

// Ruleset is fully resolved at catalog build time and never mutated afterwards.
type Ruleset struct {
	Name          string             `json:"name" yaml:"name"`
	MinVersion    MinVersion         `json:"min_version" yaml:"min_version"`
	Patterns      []Pattern          `json:"patterns" yaml:"patterns"`
	GFPFlags      map[string]GFPFlag `json:"gfp_flags" yaml:"gfp_flags"`
	ReverseLookup []string           `json:"reverse_lookup" yaml:"reverse_lookup"`
	Knobs         Knobs              `json:"knobs" yaml:"knobs"`

	psColumns    *regexp.Regexp
	cgroupMarker *regexp.Regexp
	manualMarker *regexp.Regexp
}

// Pattern returns the pattern registered under name.
func (r *Ruleset) Pattern(name string) (Pattern, bool) {
	for _, p := range r.Patterns {
		if p.Name == name {
			return p, true
		}
	}
	return Pattern{}, false
}

// PSTableColumns returns the compiled process table line regex.
func (r *Ruleset) PSTableColumns() *regexp.Regexp {
	return r.psColumns
}

// ZoneIndex returns the position of zone in the zone type list, or -1.
func (r *Ruleset) ZoneIndex(zone string) int {
	for i, z := range r.Knobs.ZoneTypes {
		if z == zone {
			return i
		}
	}
	return -1
}

// DetectAnalysisType classifies a normalized OOM text. The cgroup marker wins
// over the manual marker.
func (r *Ruleset) DetectAnalysisType(text string) AnalysisType {
	if r.cgroupMarker != nil && r.cgroupMarker.MatchString(text) {
		return CgroupAutomatic
	}
	if r.manualMarker != nil && r.manualMarker.MatchString(text) {
		return KernelManual
	}
	return KernelAutomatic
}

// compileKnobs compiles the regex knobs after all diffs have been applied.
func (r *Ruleset) compileKnobs() error {
	var err error
	if r.psColumns, err = compileMultiline(r.Knobs.PSTableColumns); err != nil {
		return errors.Wrapf(err, "ruleset %s: pstable_columns", r.Name)
	}
	if r.cgroupMarker, err = compileMultiline(r.Knobs.OOMCgroupMarker); err != nil {
		return errors.Wrapf(err, "ruleset %s: oom_cgroup_marker", r.Name)
	}
	if r.manualMarker, err = compileMultiline(r.Knobs.OOMManualMarker); err != nil {
		return errors.Wrapf(err, "ruleset %s: oom_manual_marker", r.Name)
	}
	if r.Knobs.PageAllocCostlyOrder < 0 {
		return errors.Errorf("ruleset %s: negative page_alloc_costly_order", r.Name)
	}
	return nil
}

func compileMultiline(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile("(?m)" + expr)
}
