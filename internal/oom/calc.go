// File: internal/oom/calc.go
// Purpose: Derives values from the extracted fields: platform and distribution
// guesses, kB conversions, swap usage and the killed process share of RAM.

package oom

import (
	"strings"

	"github.com/edespino/oomtoolbox/internal/kconfig"
)

const defaultPageSizeKB = 4

type guess struct {
	marker string
	value  string
}

// First match wins, so more specific markers come first.
var (
	platformGuesses = []guess{
		{"x86_64", "x86 64bit"},
		{"aarch64", "ARM 64bit"},
		{"ppc64le", "PowerPC 64bit (little endian)"},
		{"ppc64", "PowerPC 64bit"},
		{"s390x", "IBM Z"},
		{"i686", "x86 32bit"},
		{"i386", "x86 32bit"},
	}
	distGuesses = []guess{
		{".el9", "RHEL/CentOS 9"},
		{".el8", "RHEL/CentOS 8"},
		{".el7", "RHEL/CentOS 7"},
		{".el6", "RHEL/CentOS 6"},
		{".el5", "RHEL/CentOS 5"},
		{".fc", "Fedora"},
		{"ARCH", "Arch Linux"},
		{"-generic", "Ubuntu"},
		{"_generic", "Ubuntu"},
		{"-amd64", "Debian"},
		{"Debian", "Debian"},
	}
)

func guessFrom(list []guess, s string) string {
	for _, g := range list {
		if strings.Contains(s, g.marker) {
			return g.value
		}
	}
	return "unknown"
}

// pageSizeKB is an educated guess: 64k pages on ppc64 kernels, 4k elsewhere.
func pageSizeKB(kernelVersion string) int64 {
	if strings.Contains(kernelVersion, "ppc64") {
		return 64
	}
	return defaultPageSizeKB
}

// calculate adds the derived values to res. Values whose inputs are missing
// are recorded in res.Unavailable with the name of the first missing input.
func calculate(res *Result, r *kconfig.Ruleset, t *Text) {
	kv := res.KernelVersion
	res.Platform = guessFrom(platformGuesses, kv)
	res.Dist = guessFrom(distGuesses, kv)

	pageSize := pageSizeKB(kv)
	res.Numbers["page_size_kb"] = pageSize

	need := func(derived string, inputs ...string) ([]int64, bool) {
		vals := make([]int64, len(inputs))
		for i, in := range inputs {
			v, ok := res.Number(in)
			if !ok {
				res.Unavailable[derived] = "missing " + in
				return nil, false
			}
			vals[i] = v
		}
		return vals, true
	}

	if res.AnalysisType != kconfig.CgroupAutomatic {
		if v, ok := need("swap_cache_kb", "swap_cache_pages"); ok {
			res.Numbers["swap_cache_kb"] = v[0] * pageSize
		}
		if v, ok := need("swap_used_kb", "swap_total_kb", "swap_free_kb", "swap_cache_kb"); ok {
			res.Numbers["swap_used_kb"] = v[0] - v[1] - v[2]
		}
		if v, ok := need("ram_kb", "ram_pages"); ok {
			res.Numbers["ram_kb"] = v[0] * pageSize
		}
		if v, ok := need("ram_reserved_kb", "reserved_pages"); ok {
			res.Numbers["ram_reserved_kb"] = v[0] * pageSize
		}
	}

	if v, ok := need("trigger_proc_requested_memory_pages", "trigger_proc_order"); ok {
		if v[0] < 0 {
			res.Unavailable["trigger_proc_requested_memory_pages"] = "manually triggered OOM"
		} else {
			pages := int64(1) << uint(v[0])
			res.Numbers["trigger_proc_requested_memory_pages"] = pages
			res.Numbers["trigger_proc_requested_memory_kb"] = pages * pageSize
		}
	}

	calcKilledRSS(res)

	if raw, ok := res.Details.Get("trigger_proc_gfp_mask"); ok {
		flags, err := r.DecodeFlags(raw)
		if err != nil {
			res.Unavailable["trigger_proc_gfp_flags"] = err.Error()
		} else {
			res.GFPFlags = flags
			res.Details["trigger_proc_gfp_flags"] = strings.Join(flags, " | ")
		}
	} else {
		res.Unavailable["trigger_proc_gfp_flags"] = "missing trigger_proc_gfp_mask"
	}

	if block := strings.TrimSuffix(t.Block("Hardware name:"), "\n"); block != "" {
		res.Details["hardware_info"] = block
	}
	if block := strings.TrimSuffix(t.Block("Call Trace:"), "\n"); block != "" {
		res.Details["call_trace"] = block
	}
}

// calcKilledRSS sums the resident memory of the killed process. Kernels that
// do not print shmem-rss have no such field at all and count it as zero; a
// NotFound value still makes the sum unavailable.
func calcKilledRSS(res *Result) {
	const derived = "killed_proc_rss_kb"
	var total int64
	for _, in := range []string{"killed_proc_anon_rss_kb", "killed_proc_file_rss_kb", "killed_proc_shmem_rss_kb"} {
		v, ok := res.Number(in)
		if !ok {
			if _, present := res.Details[in]; !present && in == "killed_proc_shmem_rss_kb" {
				continue
			}
			res.Unavailable[derived] = "missing " + in
			res.Unavailable["killed_proc_rss_percent"] = "missing " + derived
			return
		}
		total += v
	}
	res.Numbers[derived] = total

	ram, ok := res.Number("ram_kb")
	if !ok || ram == 0 {
		res.Unavailable["killed_proc_rss_percent"] = "missing ram_kb"
		return
	}
	res.Numbers["killed_proc_rss_percent"] = total * 100 / ram
}
