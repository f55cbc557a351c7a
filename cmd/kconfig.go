// File: cmd/kconfig.go
//
// Description:
// Implements the `kconfig` command, which shows the ruleset the analyser would
// use for a kernel release: its minimum version, knobs, extraction patterns and
// the resolved GFP flag table. Without an argument the running kernel is used
// (`uname -r`).

package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/edespino/oomtoolbox/internal/kconfig"
	"github.com/edespino/oomtoolbox/internal/log"
)

// RulesetInfo is the printable view of a resolved ruleset.
type RulesetInfo struct {
	Release    string        `json:"release" yaml:"release"`
	Ruleset    string        `json:"ruleset" yaml:"ruleset"`
	MinVersion string        `json:"min_version" yaml:"min_version"`
	Knobs      kconfig.Knobs `json:"knobs" yaml:"knobs"`
	Patterns   []PatternInfo `json:"patterns" yaml:"patterns"`
	GFPFlags   []FlagInfo    `json:"gfp_flags" yaml:"gfp_flags"`
}

// PatternInfo is one extraction pattern with its kind.
type PatternInfo struct {
	Name  string `json:"name" yaml:"name"`
	Kind  string `json:"kind" yaml:"kind"`
	Regex string `json:"regex" yaml:"regex"`
}

// FlagInfo is one row of the GFP flag table.
type FlagInfo struct {
	Name  string `json:"name" yaml:"name"`
	Expr  string `json:"expr" yaml:"expr"`
	Value string `json:"value" yaml:"value"`
}

var kconfigCmd = &cobra.Command{
	Use:   "kconfig [release]",
	Short: "Show the kernel ruleset used for a release",
	Long: `Show the ruleset resolved for a kernel release such as
"3.10.0-1160.el7.x86_64". The running kernel is used when no release is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		release := ""
		if len(args) == 1 {
			release = args[0]
		}
		r, release, err := resolveRuleset(release)
		if err != nil {
			return err
		}

		info := newRulesetInfo(release, r)
		if formatFlag == "text" {
			printRulesetInfo(cmd.OutOrStdout(), info)
			return nil
		}
		return writeStructured(cmd.OutOrStdout(), formatFlag, info)
	},
}

func init() {
	rootCmd.AddCommand(kconfigCmd)
}

// getKernelRelease returns the running kernel release by executing 'uname -r'.
func getKernelRelease() (string, error) {
	output, err := cmdExecutor.Execute("uname", "-r")
	if err != nil {
		return "", fmt.Errorf("failed to get kernel release: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// resolveRuleset picks the ruleset of release, or of the running kernel when
// release is empty. A release older than every ruleset falls back to the base
// ruleset with a warning.
func resolveRuleset(release string) (*kconfig.Ruleset, string, error) {
	if release == "" {
		var err error
		release, err = getKernelRelease()
		if err != nil {
			return nil, "", err
		}
	}

	r, _, err := catalog.ResolveRelease(release)
	switch {
	case err == nil:
	case errors.Is(err, kconfig.ErrUnknownRuleset):
		log.Logger.Warnw("using base ruleset", "release", release, "error", err)
	default:
		return nil, release, err
	}
	return r, release, nil
}

func newRulesetInfo(release string, r *kconfig.Ruleset) RulesetInfo {
	info := RulesetInfo{
		Release:    release,
		Ruleset:    r.Name,
		MinVersion: r.MinVersion.String(),
		Knobs:      r.Knobs,
	}
	for _, p := range r.Patterns {
		info.Patterns = append(info.Patterns, PatternInfo{Name: p.Name, Kind: p.Kind.String(), Regex: p.Regex.String()})
	}
	for name, f := range r.GFPFlags {
		info.GFPFlags = append(info.GFPFlags, FlagInfo{Name: name, Expr: f.Expr, Value: kconfig.FormatMask(f.Value)})
	}
	sort.Slice(info.GFPFlags, func(i, j int) bool {
		return info.GFPFlags[i].Name < info.GFPFlags[j].Name
	})
	return info
}

func printRulesetInfo(w io.Writer, info RulesetInfo) {
	fmt.Fprintf(w, "Release:     %s\n", info.Release)
	fmt.Fprintf(w, "Ruleset:     %s\n", info.Ruleset)
	fmt.Fprintf(w, "Min version: %s\n", info.MinVersion)
	fmt.Fprintf(w, "Costly order: %d\n", info.Knobs.PageAllocCostlyOrder)
	fmt.Fprintf(w, "Zones:       %s\n", strings.Join(info.Knobs.ZoneTypes, ", "))
	fmt.Fprintf(w, "Patterns:    %d\n", len(info.Patterns))

	fmt.Fprintln(w, "\nGFP flags:")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Flag", "Value", "Definition"})
	table.SetAutoWrapText(false)
	for _, f := range info.GFPFlags {
		table.Append([]string{f.Name, f.Value, f.Expr})
	}
	table.Render()
}
