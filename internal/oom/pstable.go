// File: internal/oom/pstable.go
// Purpose: Parses the task dump ("[ pid ]   uid  tgid total_vm ...") into typed records.

package oom

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/edespino/oomtoolbox/internal/kconfig"
)

const (
	NoteTriggerProcess = "trigger process"
	NoteKilledProcess  = "killed process"
)

// ProcessRecord is one line of the task dump. PgTables holds the page table
// column, counted in PgTablesUnit ("pages" before 4.15, "bytes" after).
type ProcessRecord struct {
	PID           int64            `json:"pid" yaml:"pid"`
	UID           int64            `json:"uid" yaml:"uid"`
	TGID          int64            `json:"tgid" yaml:"tgid"`
	TotalVMPages  int64            `json:"total_vm_pages" yaml:"total_vm_pages"`
	RSSPages      int64            `json:"rss_pages" yaml:"rss_pages"`
	PgTables      int64            `json:"pgtables" yaml:"pgtables"`
	PgTablesUnit  string           `json:"pgtables_unit" yaml:"pgtables_unit"`
	SwapEntsPages int64            `json:"swapents_pages" yaml:"swapents_pages"`
	OOMScoreAdj   int64            `json:"oom_score_adj" yaml:"oom_score_adj"`
	Extra         map[string]int64 `json:"extra,omitempty" yaml:"extra,omitempty"`
	Name          string           `json:"name" yaml:"name"`
	Notes         string           `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// ProcessTable indexes the records by pid. PIDs is sorted ascending.
type ProcessTable struct {
	Metric  string                   `json:"metric" yaml:"metric"`
	Records map[int64]*ProcessRecord `json:"records" yaml:"records"`
	PIDs    []int64                  `json:"pids" yaml:"pids"`
}

func pgTablesUnit(metric string) string {
	if strings.HasSuffix(metric, "_bytes") {
		return "bytes"
	}
	return "pages"
}

// parseProcessTable reads the lines starting with "[" after the ruleset's
// table header. A report without a task dump yields a nil table.
func parseProcessTable(t *Text, r *kconfig.Ruleset) (*ProcessTable, []error) {
	columns := r.PSTableColumns()
	if r.Knobs.PSTableStart == "" || columns == nil || !t.FindText(r.Knobs.PSTableStart) {
		return nil, nil
	}

	pt := &ProcessTable{Metric: r.Knobs.PSTableMetric, Records: map[int64]*ProcessRecord{}}
	names := columns.SubexpNames()
	var errs []error

	for {
		line, ok := t.Next()
		if !ok || !strings.HasPrefix(line, "[") {
			break
		}
		m := columns.FindStringSubmatch(line)
		if m == nil {
			errs = append(errs, errors.Wrapf(ErrExtraction, "process table line %q", line))
			continue
		}

		rec := &ProcessRecord{PgTablesUnit: pgTablesUnit(pt.Metric)}
		for i, col := range names {
			if i == 0 || col == "" {
				continue
			}
			raw := m[i]
			switch col {
			case "name":
				rec.Name = raw
				continue
			case "pid":
				rec.PID = atoi64(raw)
				continue
			}

			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				errs = append(errs, errors.Wrapf(ErrNumericCoercion, "process %s column %s=%q", m[1], col, raw))
				continue
			}
			switch col {
			case "uid":
				rec.UID = v
			case "tgid":
				rec.TGID = v
			case "total_vm_pages":
				rec.TotalVMPages = v
			case "rss_pages":
				rec.RSSPages = v
			case "swapents_pages":
				rec.SwapEntsPages = v
			case "oom_score_adj":
				rec.OOMScoreAdj = v
			case pt.Metric:
				rec.PgTables = v
			default:
				if rec.Extra == nil {
					rec.Extra = map[string]int64{}
				}
				rec.Extra[col] = v
			}
		}

		if _, dup := pt.Records[rec.PID]; !dup {
			pt.PIDs = append(pt.PIDs, rec.PID)
		}
		pt.Records[rec.PID] = rec
	}

	sort.Slice(pt.PIDs, func(i, j int) bool { return pt.PIDs[i] < pt.PIDs[j] })
	return pt, errs
}

// annotate adds a note to the record of pid, if the table lists it.
func (pt *ProcessTable) annotate(pid int64, note string) {
	if pt == nil {
		return
	}
	rec, ok := pt.Records[pid]
	if !ok {
		return
	}
	if rec.Notes == "" {
		rec.Notes = note
		return
	}
	rec.Notes += ", " + note
}

// SortedBy returns the records ordered by column. Ties keep ascending pid order.
// Known columns are the record's json names plus any Extra key.
func (pt *ProcessTable) SortedBy(column string, descending bool) ([]*ProcessRecord, error) {
	if pt == nil {
		return nil, nil
	}

	var less func(a, b *ProcessRecord) bool
	switch column {
	case "name":
		less = func(a, b *ProcessRecord) bool { return a.Name < b.Name }
	case "notes":
		less = func(a, b *ProcessRecord) bool { return a.Notes < b.Notes }
	default:
		key, err := numericColumn(column, pt)
		if err != nil {
			return nil, err
		}
		less = func(a, b *ProcessRecord) bool { return key(a) < key(b) }
	}

	out := make([]*ProcessRecord, 0, len(pt.PIDs))
	for _, pid := range pt.PIDs {
		out = append(out, pt.Records[pid])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out, nil
}

func numericColumn(column string, pt *ProcessTable) (func(*ProcessRecord) int64, error) {
	switch column {
	case "pid":
		return func(p *ProcessRecord) int64 { return p.PID }, nil
	case "uid":
		return func(p *ProcessRecord) int64 { return p.UID }, nil
	case "tgid":
		return func(p *ProcessRecord) int64 { return p.TGID }, nil
	case "total_vm_pages":
		return func(p *ProcessRecord) int64 { return p.TotalVMPages }, nil
	case "rss_pages":
		return func(p *ProcessRecord) int64 { return p.RSSPages }, nil
	case "pgtables", pt.Metric:
		return func(p *ProcessRecord) int64 { return p.PgTables }, nil
	case "swapents_pages":
		return func(p *ProcessRecord) int64 { return p.SwapEntsPages }, nil
	case "oom_score_adj":
		return func(p *ProcessRecord) int64 { return p.OOMScoreAdj }, nil
	}
	for _, rec := range pt.Records {
		if _, ok := rec.Extra[column]; ok {
			return func(p *ProcessRecord) int64 { return p.Extra[column] }, nil
		}
	}
	return nil, errors.Errorf("unknown process table column %q", column)
}
