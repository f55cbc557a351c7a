// File: internal/kconfig/catalog_test.go
package kconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogOrder(t *testing.T) {
	c := DefaultCatalog()
	rs := c.Rulesets()
	require.NotEmpty(t, rs)

	assert.Equal(t, "6.8", rs[0].Name)
	assert.Equal(t, "3.10", c.Base().Name)
	assert.Same(t, c, DefaultCatalog())

	for _, r := range rs {
		assert.NotEmpty(t, r.Patterns, r.Name)
		assert.NotNil(t, r.PSTableColumns(), r.Name)
		assert.NotEmpty(t, r.ReverseLookup, r.Name)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		release string
		want    string
		wantErr error
	}{
		{"3.10.0-514.6.1.el7.x86_64", "3.10 (RHEL/CentOS 7)", nil},
		{"3.10.108", "3.10", nil},
		{"4.4.0-21-generic", "4.4", nil},
		{"4.15.0-112-generic", "4.15", nil},
		{"4.18.0-305.el8.x86_64", "4.18", nil},
		{"5.15.0-91-generic", "5.14", nil},
		{"5.19-rc6", "5.14", nil},
		{"6.1.0-13-amd64", "6.0", nil},
		{"6.13.2-arch1-1", "6.8", nil},
		{"2.6.32-754.el6.x86_64", "3.10", ErrUnknownRuleset},
	}

	for _, tt := range tests {
		t.Run(tt.release, func(t *testing.T) {
			r, v, err := DefaultCatalog().ResolveRelease(tt.release)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, r.Name)
			assert.Equal(t, tt.release, v.Full)
		})
	}
}

func TestRulesetDiffs(t *testing.T) {
	c := DefaultCatalog()

	base, ok := c.Lookup("3.10")
	require.True(t, ok)
	el7, ok := c.Lookup("3.10 (RHEL/CentOS 7)")
	require.True(t, ok)
	v415, ok := c.Lookup("4.15")
	require.True(t, ok)
	v419, ok := c.Lookup("4.19")
	require.True(t, ok)
	v51, ok := c.Lookup("5.1")
	require.True(t, ok)

	// replaced in place, keeping the position
	bp, _ := base.Pattern("killed process")
	ep, _ := el7.Pattern("killed process")
	assert.NotContains(t, bp.Regex.String(), "shmem-rss")
	assert.Contains(t, ep.Regex.String(), "shmem-rss")
	assert.Equal(t, len(base.Patterns), len(el7.Patterns))

	assert.Equal(t, "[ pid ]", base.Knobs.PSTableStart)
	assert.Equal(t, "[  pid  ]", v415.Knobs.PSTableStart)
	assert.Equal(t, "pgtables_bytes", v415.Knobs.PSTableMetric)
	assert.Equal(t, "nr_ptes_pages", base.Knobs.PSTableMetric)

	_, ok = v419.Pattern("cpuset")
	assert.False(t, ok)
	_, ok = v419.Pattern("oom-kill constraint")
	assert.True(t, ok)
	_, ok = v51.Pattern("kill process")
	assert.False(t, ok)

	_, err := v415.FlagValue("__GFP_COLD")
	assert.ErrorIs(t, err, ErrUnknownFlag)
	_, err = base.FlagValue("__GFP_COLD")
	assert.NoError(t, err)

	assert.Equal(t, 2, base.ZoneIndex("Normal"))
	assert.Equal(t, -1, base.ZoneIndex("Bogus"))
	assert.Equal(t, 3, base.Knobs.PageAllocCostlyOrder)
}

func TestDetectAnalysisType(t *testing.T) {
	r := DefaultCatalog().Base()

	tests := []struct {
		name string
		text string
		want AnalysisType
	}{
		{"kernel", "sed invoked oom-killer: gfp_mask=0x201da, order=0, oom_score_adj=0\n", KernelAutomatic},
		{"manual", "kworker/0:2 invoked oom-killer: gfp_mask=0xcc0(GFP_KERNEL), order=-1, oom_score_adj=0\n", KernelManual},
		{"cgroup", "java invoked oom-killer: gfp_mask=0x14000c0, order=0, oom_score_adj=0\nmemory: usage 524288kB, limit 524288kB, failcnt 1234\n", CgroupAutomatic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.DetectAnalysisType(tt.text))
		})
	}
}

func TestPatternKind(t *testing.T) {
	tests := []struct {
		kind      PatternKind
		mandatory bool
		kernel    bool
		cgroup    bool
	}{
		{AllMandatory, true, true, true},
		{AllOptional, false, true, true},
		{KernelMandatory, true, true, false},
		{KernelOptional, false, true, false},
		{CgroupMandatory, true, false, true},
		{CgroupOptional, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.mandatory, tt.kind.Mandatory())
			assert.Equal(t, tt.kernel, tt.kind.Applies(KernelAutomatic))
			assert.Equal(t, tt.kernel, tt.kind.Applies(KernelManual))
			assert.Equal(t, tt.cgroup, tt.kind.Applies(CgroupAutomatic))

			parsed, err := ParsePatternKind(tt.kind.String())
			require.NoError(t, err)
			assert.Equal(t, tt.kind, parsed)
		})
	}

	_, err := ParsePatternKind("sometimes")
	assert.Error(t, err)
}

func TestLoadCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "rulesets: []\n"},
		{"unknown field", "rulesets:\n  - name: a\n    colour: red\n"},
		{"bad kind", "rulesets:\n  - name: a\n    patterns:\n      - {name: p, kind: maybe, regex: x}\n"},
		{"bad regex", "rulesets:\n  - name: a\n    patterns:\n      - {name: p, kind: all_optional, regex: '('}\n"},
		{"unknown inherit", "rulesets:\n  - name: a\n  - name: b\n    inherit: c\n"},
		{"duplicate", "rulesets:\n  - name: a\n  - name: a\n"},
		{"remove unknown pattern", "rulesets:\n  - name: a\n  - name: b\n    remove_patterns: [nope]\n"},
		{"unknown flag reference", "rulesets:\n  - name: a\n    gfp_flags: {GFP_A: \"__GFP_MISSING\"}\n"},
		{"parentheses", "rulesets:\n  - name: a\n    gfp_flags: {__GFP_X: \"0x1\", GFP_A: \"(__GFP_X)\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestLoadCatalogMinimal(t *testing.T) {
	doc := `
rulesets:
  - name: base
    min_version: {major: 3, minor: 0}
    knobs:
      pstable_start: '[ pid ]'
    gfp_flags:
      __GFP_A: "0x1"
      GFP_A: "__GFP_A"
  - name: newer
    min_version: {major: 5, minor: 0}
    knobs:
      page_alloc_costly_order: 2
    gfp_flags:
      __GFP_B: "0x2"
`
	c, err := LoadCatalog([]byte(doc))
	require.NoError(t, err)

	newer, ok := c.Lookup("newer")
	require.True(t, ok)
	assert.Equal(t, 2, newer.Knobs.PageAllocCostlyOrder)
	assert.Equal(t, "[ pid ]", newer.Knobs.PSTableStart)
	assert.Equal(t, []string{"GFP_A", "__GFP_B", "__GFP_A"}, newer.ReverseLookup)
	assert.Equal(t, 3, c.Base().Knobs.PageAllocCostlyOrder)
}
