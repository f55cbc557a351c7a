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

// File: internal/oom/types.go
// Purpose: Data structures produced by an OOM analysis.

package oom

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/edespino/oomtoolbox/internal/kconfig"
)

// NotFound replaces the values of mandatory fields that could not be extracted.
const NotFound = "<not found>"

// FieldMap holds the raw values captured by the ruleset patterns.
type FieldMap map[string]string

// Get returns the value of name unless it is missing or NotFound.
func (f FieldMap) Get(name string) (string, bool) {
	v, ok := f[name]
	if !ok || v == NotFound {
		return "", false
	}
	return v, true
}

// AllocFailureReason classifies why the triggering allocation failed.
type AllocFailureReason int

const (
	NotStarted AllocFailureReason = iota
	MissingData
	BelowLowWatermark
	NoFreeChunks
	UnknownReason
	SkippedHighOrder
)

func (r AllocFailureReason) String() string {
	switch r {
	case NotStarted:
		return "not_started"
	case MissingData:
		return "missing_data"
	case BelowLowWatermark:
		return "below_low_watermark"
	case NoFreeChunks:
		return "no_free_chunks"
	case UnknownReason:
		return "unknown_reason"
	case SkippedHighOrder:
		return "skipped_high_order"
	}
	return fmt.Sprintf("AllocFailureReason(%d)", int(r))
}

// Description is the human readable explanation used in reports.
func (r AllocFailureReason) Description() string {
	switch r {
	case NotStarted:
		return "The analysis of the memory allocation failure was not started or no node was short of memory."
	case MissingData:
		return "The analysis could not run because required data is missing from the OOM report."
	case BelowLowWatermark:
		return "The free memory of the zone is below the low watermark plus the reserve for lower zones."
	case NoFreeChunks:
		return "No free chunk of the requested order or larger is available in the zone."
	case UnknownReason:
		return "The memory allocation failed for an unknown reason."
	case SkippedHighOrder:
		return "The requested order is above the costly order; such allocations do not trigger the OOM killer."
	}
	return r.String()
}

func (r AllocFailureReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// OrderChunks holds the free chunk counts of one order.
type OrderChunks struct {
	PerNode         map[int]int64 `json:"per_node" yaml:"per_node"`
	FreeChunksTotal int64         `json:"free_chunks_total" yaml:"free_chunks_total"`
}

// ZoneBuddyInfo is the free area listing of one zone across all nodes.
type ZoneBuddyInfo struct {
	Orders             map[int]*OrderChunks `json:"orders" yaml:"orders"`
	TotalFreeKBPerNode map[int]int64        `json:"total_free_kb_per_node" yaml:"total_free_kb_per_node"`
}

// BuddyInfo maps a zone name to its free area listing.
type BuddyInfo map[string]*ZoneBuddyInfo

// MaxOrder is the number of distinct orders printed for the DMA zone.
func (b BuddyInfo) MaxOrder() int {
	z, ok := b["DMA"]
	if !ok {
		return 0
	}
	return len(z.Orders)
}

// Chunks returns the free chunk count of zone/order/node.
func (b BuddyInfo) Chunks(zone string, order, node int) (int64, bool) {
	z, ok := b[zone]
	if !ok {
		return 0, false
	}
	o, ok := z.Orders[order]
	if !ok {
		return 0, false
	}
	n, ok := o.PerNode[node]
	return n, ok
}

// Zones returns the zone names in the order given.
func (b BuddyInfo) Zones(order []string) []string {
	var zones []string
	for _, z := range order {
		if _, ok := b[z]; ok {
			zones = append(zones, z)
		}
	}
	return zones
}

// Watermark is the zone state of one node. Values are kB, LowmemReserve is
// printed in pages.
type Watermark struct {
	Free          int64   `json:"free" yaml:"free"`
	Boost         int64   `json:"boost" yaml:"boost"`
	Min           int64   `json:"min" yaml:"min"`
	Low           int64   `json:"low" yaml:"low"`
	High          int64   `json:"high" yaml:"high"`
	LowmemReserve []int64 `json:"lowmem_reserve,omitempty" yaml:"lowmem_reserve,omitempty"`
}

// Watermarks maps zone and node to the zone state.
type Watermarks map[string]map[int]*Watermark

// Get returns the watermark of zone/node.
func (w Watermarks) Get(zone string, node int) (*Watermark, bool) {
	nodes, ok := w[zone]
	if !ok {
		return nil, false
	}
	wm, ok := nodes[node]
	return wm, ok
}

// Nodes returns the node numbers of zone in ascending order.
func (w Watermarks) Nodes(zone string) []int {
	nodes := make([]int, 0, len(w[zone]))
	for n := range w[zone] {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	return nodes
}

// Result is the outcome of one analysis. It is created per call and never shared.
type Result struct {
	AnalysisID    string               `json:"analysis_id" yaml:"analysis_id"`
	State         State                `json:"state" yaml:"state"`
	Errors        []string             `json:"errors,omitempty" yaml:"errors,omitempty"`
	AnalysisType  kconfig.AnalysisType `json:"analysis_type" yaml:"analysis_type"`
	KernelVersion string               `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty"`
	Ruleset       string               `json:"ruleset,omitempty" yaml:"ruleset,omitempty"`
	Platform      string               `json:"platform,omitempty" yaml:"platform,omitempty"`
	Dist          string               `json:"dist,omitempty" yaml:"dist,omitempty"`

	Details     FieldMap          `json:"details,omitempty" yaml:"details,omitempty"`
	Numbers     map[string]int64  `json:"numbers,omitempty" yaml:"numbers,omitempty"`
	Unavailable map[string]string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
	GFPFlags    []string          `json:"gfp_flags,omitempty" yaml:"gfp_flags,omitempty"`

	BuddyInfo     BuddyInfo          `json:"buddy_info,omitempty" yaml:"buddy_info,omitempty"`
	MaxOrder      int                `json:"max_order" yaml:"max_order"`
	Watermarks    Watermarks         `json:"watermarks,omitempty" yaml:"watermarks,omitempty"`
	Processes     *ProcessTable      `json:"processes,omitempty" yaml:"processes,omitempty"`
	AllocFailure  AllocFailureReason `json:"alloc_failure" yaml:"alloc_failure"`
	MemFragmented *bool              `json:"mem_fragmented,omitempty" yaml:"mem_fragmented,omitempty"`

	errs []error
}

func newResult(id string) *Result {
	return &Result{
		AnalysisID:  id,
		Details:     FieldMap{},
		Numbers:     map[string]int64{},
		Unavailable: map[string]string{},
	}
}

// Err combines all errors collected during the analysis.
func (r *Result) Err() error {
	return multierr.Combine(r.errs...)
}

// Number returns an integer field or derived value.
func (r *Result) Number(name string) (int64, bool) {
	v, ok := r.Numbers[name]
	return v, ok
}

func (r *Result) addError(err error) {
	if err == nil {
		return
	}
	r.errs = append(r.errs, err)
	r.Errors = append(r.Errors, err.Error())
}
