// File: cmd/gfp.go
//
// Description:
// Implements the `gfp` command. A hex mask such as 0x201da is split into the
// GFP flag names of the selected kernel; flag names (separate arguments or
// joined with "|") are combined into their mask.
//
// Usage:
// - oomtoolbox gfp 0x201da --kernel 3.10.0-514.el7.x86_64
// - oomtoolbox gfp "GFP_KERNEL|__GFP_NOWARN" --kernel 5.15.0-91-generic

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edespino/oomtoolbox/internal/kconfig"
)

var kernelFlag string

// GFPResult is the output of the gfp command.
type GFPResult struct {
	Release  string   `json:"release" yaml:"release"`
	Ruleset  string   `json:"ruleset" yaml:"ruleset"`
	Mask     string   `json:"mask" yaml:"mask"`
	Flags    []string `json:"flags" yaml:"flags"`
	Residual string   `json:"residual,omitempty" yaml:"residual,omitempty"`
}

var gfpCmd = &cobra.Command{
	Use:   "gfp <mask|FLAG...>",
	Short: "Decode or encode a GFP mask",
	Long: `Decode a GFP mask into flag names, or encode flag names into a mask,
using the flag table of the kernel given with --kernel (default: running kernel).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, release, err := resolveRuleset(kernelFlag)
		if err != nil {
			return err
		}

		res, err := convertGFP(r, args)
		if err != nil {
			return err
		}
		res.Release = release

		if formatFlag == "text" {
			line := strings.Join(res.Flags, " | ")
			if res.Residual != "" {
				line += " | " + res.Residual
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", res.Mask, line)
			return nil
		}
		return writeStructured(cmd.OutOrStdout(), formatFlag, res)
	},
}

func init() {
	gfpCmd.Flags().StringVar(&kernelFlag, "kernel", "", "Kernel release selecting the flag table (default: uname -r)")
	rootCmd.AddCommand(gfpCmd)
}

// isMaskArg reports whether arg is a numeric mask rather than a flag name.
func isMaskArg(arg string) bool {
	if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
		return true
	}
	return strings.Trim(arg, "0123456789") == ""
}

func convertGFP(r *kconfig.Ruleset, args []string) (GFPResult, error) {
	res := GFPResult{Ruleset: r.Name}

	var mask uint64
	if len(args) == 1 && isMaskArg(args[0]) {
		m, err := kconfig.ParseMask(args[0])
		if err != nil {
			return res, err
		}
		mask = m
	} else {
		var names []string
		for _, a := range args {
			names = append(names, strings.Split(a, "|")...)
		}
		m, err := r.EncodeFlags(names...)
		if err != nil {
			return res, err
		}
		mask = m
	}

	names, residual := r.DecodeMask(mask)
	res.Mask = kconfig.FormatMask(mask)
	res.Flags = names
	if residual != 0 {
		res.Residual = kconfig.FormatMask(residual)
	}
	return res, nil
}
