// File: internal/oom/buddyinfo.go
// Purpose: Parses the free area listing ("Node 0 Normal: 1231*4kB (UEM) ... = 38260kB").

package oom

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/edespino/oomtoolbox/internal/kconfig"
)

var chunkRE = regexp.MustCompile(`^(\d+)\*(\d+)kB$`)

func zoneAlternation(r *kconfig.Ruleset) string {
	quoted := make([]string, 0, len(r.Knobs.ZoneTypes))
	for _, z := range r.Knobs.ZoneTypes {
		quoted = append(quoted, regexp.QuoteMeta(z))
	}
	return strings.Join(quoted, "|")
}

// parseBuddyInfo reads every free area line after the first node 0 DMA listing.
// Orders are counted per token, migration type annotations like "(UEM)" are skipped.
func parseBuddyInfo(t *Text, r *kconfig.Ruleset) (BuddyInfo, []error) {
	if !t.FindText(r.Knobs.ZoneInfoStart) {
		return nil, nil
	}
	lineRE := regexp.MustCompile(`^Node (\d+) (` + zoneAlternation(r) + `): (.*) = (\d+)kB`)

	info := BuddyInfo{}
	var errs []error
	for line, ok := t.Current(), true; ok; line, ok = t.Next() {
		m := lineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		node, _ := strconv.Atoi(m[1])
		zone := m[2]
		total, _ := strconv.ParseInt(m[4], 10, 64)

		z, ok := info[zone]
		if !ok {
			z = &ZoneBuddyInfo{Orders: map[int]*OrderChunks{}, TotalFreeKBPerNode: map[int]int64{}}
			info[zone] = z
		}
		z.TotalFreeKBPerNode[node] = total

		order := 0
		for _, tok := range strings.Fields(m[3]) {
			if strings.HasPrefix(tok, "(") {
				continue
			}
			cm := chunkRE.FindStringSubmatch(tok)
			var count int64
			if cm == nil {
				errs = append(errs, errors.Wrapf(ErrNumericCoercion, "buddy info %s node %d order %d: %q", zone, node, order, tok))
			} else {
				count, _ = strconv.ParseInt(cm[1], 10, 64)
			}

			oc, ok := z.Orders[order]
			if !ok {
				oc = &OrderChunks{PerNode: map[int]int64{}}
				z.Orders[order] = oc
			}
			oc.PerNode[node] = count
			oc.FreeChunksTotal += count
			order++
		}
	}
	return info, errs
}
