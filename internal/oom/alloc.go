// File: internal/oom/alloc.go
// Purpose: Classifies why the triggering memory request could not be served.

package oom

import (
	"github.com/edespino/oomtoolbox/internal/kconfig"
)

// allocZone picks the zone the request was served from by its GFP zone bits.
func allocZone(mask uint64, r *kconfig.Ruleset) string {
	if dma, err := r.FlagValue("__GFP_DMA"); err == nil && mask&dma != 0 {
		return "DMA"
	}
	if dma32, err := r.FlagValue("__GFP_DMA32"); err == nil && mask&dma32 != 0 {
		return "DMA32"
	}
	return "Normal"
}

// analyseAllocFailure fills AllocFailure and MemFragmented. It needs the
// coerced order, the decoded mask, buddy info and watermarks.
func analyseAllocFailure(res *Result, r *kconfig.Ruleset) {
	if res.AnalysisType == kconfig.KernelManual {
		res.AllocFailure = NotStarted
		return
	}

	order, ok := res.Number("trigger_proc_order")
	if !ok {
		res.AllocFailure = MissingData
		return
	}
	if order > int64(r.Knobs.PageAllocCostlyOrder) {
		res.AllocFailure = SkippedHighOrder
		return
	}

	rawMask, ok := res.Details.Get("trigger_proc_gfp_mask")
	if !ok || len(res.BuddyInfo) == 0 || len(res.Watermarks) == 0 {
		res.AllocFailure = MissingData
		return
	}
	mask, err := kconfig.ParseMask(rawMask)
	if err != nil {
		res.AllocFailure = MissingData
		return
	}

	zone := allocZone(mask, r)
	node, wm, found := shortageNode(res.Watermarks, zone)
	if !found {
		res.AllocFailure = NotStarted
		return
	}
	res.Numbers["trigger_proc_numa_node"] = int64(node)
	res.Details["trigger_proc_mem_zone"] = zone
	res.MemFragmented = isFragmented(res.BuddyInfo, zone, node, r.Knobs.PageAllocCostlyOrder, res.MaxOrder)

	minKB := wm.Low
	if high, err := r.FlagValue("__GFP_HIGH"); err == nil && mask&high != 0 {
		minKB -= minKB / 2
	}

	var reserveKB int64
	if idx := r.ZoneIndex(zone); idx >= 0 && idx < len(wm.LowmemReserve) {
		pageSize, ok := res.Number("page_size_kb")
		if !ok {
			pageSize = defaultPageSizeKB
		}
		reserveKB = wm.LowmemReserve[idx] * pageSize
	}

	if wm.Free <= minKB+reserveKB {
		res.AllocFailure = BelowLowWatermark
		return
	}

	for o := int(order); o < res.MaxOrder; o++ {
		if n, ok := res.BuddyInfo.Chunks(zone, o, node); ok && n > 0 {
			res.AllocFailure = UnknownReason
			return
		}
	}
	res.AllocFailure = NoFreeChunks
}

// shortageNode returns the first node, by number, whose free memory in zone
// dropped below its min watermark.
func shortageNode(wms Watermarks, zone string) (int, *Watermark, bool) {
	for _, node := range wms.Nodes(zone) {
		wm, _ := wms.Get(zone, node)
		if wm.Free < wm.Min {
			return node, wm, true
		}
	}
	return 0, nil, false
}

// isFragmented reports whether zone/node has no free chunk at or above the
// costly order.
func isFragmented(b BuddyInfo, zone string, node, costlyOrder, maxOrder int) *bool {
	if _, ok := b[zone]; !ok {
		return nil
	}
	fragmented := true
	for o := costlyOrder; o < maxOrder; o++ {
		if n, ok := b.Chunks(zone, o, node); ok && n > 0 {
			fragmented = false
			break
		}
	}
	return &fragmented
}
