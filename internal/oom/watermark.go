// File: internal/oom/watermark.go
// Purpose: Parses the per zone watermark lines and their lowmem_reserve arrays.

package oom

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/edespino/oomtoolbox/internal/kconfig"
)

const lowmemReservePrefix = "lowmem_reserve[]:"

// parseWatermarks reads the watermark block starting at the first node 0 DMA
// line. A lowmem_reserve line belongs to the watermark line above it; some
// captures print it at the end of the watermark line itself.
func parseWatermarks(t *Text, r *kconfig.Ruleset) (Watermarks, []error) {
	if !t.FindText(r.Knobs.WatermarkStart) {
		return nil, nil
	}
	lineRE := regexp.MustCompile(`^Node (\d+) (` + zoneAlternation(r) + `) free:(\d+)kB (?:boost:(\d+)kB )?min:(\d+)kB low:(\d+)kB high:(\d+)kB`)

	wms := Watermarks{}
	var (
		errs    []error
		current *Watermark
	)
	for line, ok := t.Current(), true; ok; line, ok = t.Next() {
		if strings.HasPrefix(line, lowmemReservePrefix) {
			if current == nil {
				continue
			}
			reserve, err := parseReserve(strings.TrimPrefix(line, lowmemReservePrefix))
			if err != nil {
				errs = append(errs, err)
			}
			current.LowmemReserve = reserve
			continue
		}

		m := lineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		node, _ := strconv.Atoi(m[1])
		zone := m[2]
		wm := &Watermark{
			Free: atoi64(m[3]),
			Min:  atoi64(m[5]),
			Low:  atoi64(m[6]),
			High: atoi64(m[7]),
		}
		if m[4] != "" {
			wm.Boost = atoi64(m[4])
		}
		if idx := strings.Index(line, lowmemReservePrefix); idx >= 0 {
			reserve, err := parseReserve(line[idx+len(lowmemReservePrefix):])
			if err != nil {
				errs = append(errs, err)
			}
			wm.LowmemReserve = reserve
		}

		if _, ok := wms[zone]; !ok {
			wms[zone] = map[int]*Watermark{}
		}
		wms[zone][node] = wm
		current = wm
	}
	return wms, errs
}

func parseReserve(s string) ([]int64, error) {
	var reserve []int64
	for _, f := range strings.Fields(s) {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return reserve, errors.Wrapf(ErrNumericCoercion, "lowmem_reserve value %q", f)
		}
		reserve = append(reserve, v)
	}
	return reserve, nil
}

// atoi64 is only used on regex groups of digits.
func atoi64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
