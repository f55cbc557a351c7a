// File: cmd/analyze_printer.go

package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/edespino/oomtoolbox/internal/oom"
)

// reportZones is the display order of memory zones.
var reportZones = []string{"DMA", "DMA32", "Normal", "HighMem", "Movable", "Device"}

// printReport writes the human readable report of res.
func printReport(w io.Writer, res *oom.Result, sortColumn string, top int) error {
	fmt.Fprintln(w, "OOM Killer Analysis")
	fmt.Fprintln(w, "===================")
	fmt.Fprintf(w, "Analysis: %s\n", res.AnalysisID)
	fmt.Fprintf(w, "Type:     %s\n", res.AnalysisType)
	fmt.Fprintf(w, "Kernel:   %s (ruleset %s)\n", res.KernelVersion, res.Ruleset)
	fmt.Fprintf(w, "Platform: %s, dist %s\n", res.Platform, res.Dist)
	if hw, ok := res.Details.Get("hardware_name"); ok {
		fmt.Fprintf(w, "Hardware: %s\n", hw)
	}

	fmt.Fprintln(w, "\nTrigger process:")
	printTrigger(w, res)

	fmt.Fprintln(w, "\nKilled process:")
	printKilled(w, res)

	fmt.Fprintln(w, "\nMemory:")
	printMemory(w, res)

	fmt.Fprintln(w, "\nAllocation failure:")
	fmt.Fprintf(w, "  %s: %s\n", res.AllocFailure, res.AllocFailure.Description())
	if res.MemFragmented != nil {
		fmt.Fprintf(w, "  Memory fragmented: %t\n", *res.MemFragmented)
	}

	if len(res.Watermarks) > 0 {
		fmt.Fprintln(w, "\nZone watermarks:")
		printWatermarks(w, res.Watermarks)
	}

	if len(res.BuddyInfo) > 0 {
		fmt.Fprintln(w, "\nFree memory by zone:")
		printBuddyInfo(w, res.BuddyInfo)
	}

	if res.Processes != nil {
		fmt.Fprintln(w, "\nProcesses:")
		if err := printProcesses(w, res, sortColumn, top); err != nil {
			return err
		}
	}

	if len(res.Unavailable) > 0 {
		fmt.Fprintln(w, "\nNot calculated:")
		names := make([]string, 0, len(res.Unavailable))
		for name := range res.Unavailable {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %s\n", name, res.Unavailable[name])
		}
	}
	return nil
}

func printTrigger(w io.Writer, res *oom.Result) {
	name, _ := res.Details.Get("trigger_proc_name")
	fmt.Fprintf(w, "  %s (pid %s)\n", name, numberString(res, "trigger_proc_pid"))
	fmt.Fprintf(w, "  Order %s", numberString(res, "trigger_proc_order"))
	if kb, ok := res.Number("trigger_proc_requested_memory_kb"); ok {
		fmt.Fprintf(w, ", requested %s", kbString(kb))
	}
	fmt.Fprintln(w)
	if mask, ok := res.Details.Get("trigger_proc_gfp_mask"); ok {
		flags, _ := res.Details.Get("trigger_proc_gfp_flags")
		fmt.Fprintf(w, "  GFP mask %s: %s\n", mask, flags)
	}
	if zone, ok := res.Details.Get("trigger_proc_mem_zone"); ok {
		fmt.Fprintf(w, "  Zone %s on node %s\n", zone, numberString(res, "trigger_proc_numa_node"))
	}
}

func printKilled(w io.Writer, res *oom.Result) {
	name, _ := res.Details.Get("killed_proc_name")
	fmt.Fprintf(w, "  %s (pid %s, score %s)\n", name,
		numberString(res, "killed_proc_pid"), numberString(res, "killed_proc_score"))
	if rss, ok := res.Number("killed_proc_rss_kb"); ok {
		fmt.Fprintf(w, "  Resident %s", kbString(rss))
		if pct, ok := res.Number("killed_proc_rss_percent"); ok {
			fmt.Fprintf(w, " (%d%% of RAM)", pct)
		}
		fmt.Fprintln(w)
	}
}

func printMemory(w io.Writer, res *oom.Result) {
	rows := []struct {
		label string
		name  string
	}{
		{"RAM", "ram_kb"},
		{"Reserved", "ram_reserved_kb"},
		{"Swap total", "swap_total_kb"},
		{"Swap free", "swap_free_kb"},
		{"Swap used", "swap_used_kb"},
		{"Swap cache", "swap_cache_kb"},
		{"Cgroup usage", "cgroup_mem_usage_kb"},
		{"Cgroup limit", "cgroup_mem_limit_kb"},
	}

	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, row := range rows {
		if kb, ok := res.Number(row.name); ok {
			table.Append([]string{row.label, kbString(kb)})
		}
	}
	table.Render()
}

func printWatermarks(w io.Writer, wms oom.Watermarks) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Zone", "Node", "Free", "Min", "Low", "High"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, zone := range reportZones {
		for _, node := range wms.Nodes(zone) {
			wm, _ := wms.Get(zone, node)
			table.Append([]string{
				zone, strconv.Itoa(node),
				kbString(wm.Free), kbString(wm.Min), kbString(wm.Low), kbString(wm.High),
			})
		}
	}
	table.Render()
}

func printBuddyInfo(w io.Writer, info oom.BuddyInfo) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Zone", "Node", "Free", "Largest free order"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	maxOrder := info.MaxOrder()
	for _, zone := range info.Zones(reportZones) {
		z := info[zone]
		nodes := make([]int, 0, len(z.TotalFreeKBPerNode))
		for node := range z.TotalFreeKBPerNode {
			nodes = append(nodes, node)
		}
		sort.Ints(nodes)
		for _, node := range nodes {
			largest := "-"
			for order := maxOrder - 1; order >= 0; order-- {
				if n, ok := info.Chunks(zone, order, node); ok && n > 0 {
					largest = strconv.Itoa(order)
					break
				}
			}
			table.Append([]string{zone, strconv.Itoa(node), kbString(z.TotalFreeKBPerNode[node]), largest})
		}
	}
	table.Render()
}

func printProcesses(w io.Writer, res *oom.Result, sortColumn string, top int) error {
	records, err := res.Processes.SortedBy(sortColumn, true)
	if err != nil {
		return err
	}
	if top > 0 && len(records) > top {
		records = records[:top]
	}
	pageSize, _ := res.Number("page_size_kb")

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PID", "UID", "Name", "Virtual", "Resident", "Swap", "OOM adj", "Notes"})
	table.SetAutoWrapText(false)
	for _, rec := range records {
		table.Append([]string{
			strconv.FormatInt(rec.PID, 10),
			strconv.FormatInt(rec.UID, 10),
			rec.Name,
			kbString(rec.TotalVMPages * pageSize),
			kbString(rec.RSSPages * pageSize),
			kbString(rec.SwapEntsPages * pageSize),
			strconv.FormatInt(rec.OOMScoreAdj, 10),
			rec.Notes,
		})
	}
	table.Render()
	fmt.Fprintf(w, "%d of %d processes, sorted by %s\n", len(records), len(res.Processes.PIDs), sortColumn)
	return nil
}

// kbString converts a size in kB to a human-readable string.
func kbString(kb int64) string {
	if kb < 0 {
		return "-" + humanize.IBytes(uint64(-kb)*1024)
	}
	return humanize.IBytes(uint64(kb) * 1024)
}

func numberString(res *oom.Result, name string) string {
	if v, ok := res.Number(name); ok {
		return strconv.FormatInt(v, 10)
	}
	return "?"
}
