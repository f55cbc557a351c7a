// File: cmd/analyze.go
//
// Description:
// Implements the `analyze` command. The OOM report is read from a file, from
// stdin, or from the kernel ring buffer (`--dmesg`), analysed with the
// selected ruleset catalog and printed as YAML, JSON or a text report.
//
// Usage:
// - oomtoolbox analyze /var/log/messages
// - journalctl -k | oomtoolbox analyze - --format text
// - oomtoolbox analyze --dmesg --format json

package cmd

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/edespino/oomtoolbox/internal/log"
	"github.com/edespino/oomtoolbox/internal/oom"
)

var (
	dmesgFlag  bool
	sortFlag   string
	topFlag    int
	stdinInput io.Reader = os.Stdin
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file|-]",
	Short: "Analyse an OOM killer report",
	Long: `Analyse the kernel log of one OOM killer invocation.

The input may carry syslog, journald or dmesg prefixes and rsyslog escapes;
they are removed before the analysis. Only the first OOM report in the input
is analysed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&dmesgFlag, "dmesg", false, "Read the kernel ring buffer with dmesg")
	analyzeCmd.Flags().StringVar(&sortFlag, "sort", "rss_pages", "Process table column to sort the text report by")
	analyzeCmd.Flags().IntVar(&topFlag, "top", 10, "Processes shown in the text report (0 shows all)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	raw, source, err := readReport(args)
	if err != nil {
		return err
	}
	log.Logger.Debugw("read OOM report", "source", source, "bytes", len(raw))

	res, err := oom.Analyze(raw, oom.WithCatalog(catalog))
	if err != nil {
		return errors.Wrapf(err, "cannot analyse %s", source)
	}

	if formatFlag == "text" {
		err = printReport(cmd.OutOrStdout(), res, sortFlag, topFlag)
	} else {
		err = writeStructured(cmd.OutOrStdout(), formatFlag, res)
	}
	if err != nil {
		return err
	}

	printErrorSummary(cmd.ErrOrStderr(), res.Errors)
	return nil
}

// readReport returns the raw report and a name for it used in messages.
func readReport(args []string) (string, string, error) {
	if dmesgFlag {
		if len(args) > 0 {
			return "", "", errors.New("--dmesg does not take a file argument")
		}
		out, err := cmdExecutor.Execute("dmesg")
		if err != nil {
			return "", "", errors.Wrap(err, "failed to run dmesg")
		}
		return string(out), "dmesg", nil
	}

	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdinInput)
		if err != nil {
			return "", "", errors.Wrap(err, "failed to read stdin")
		}
		return string(data), "stdin", nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to read %s", args[0])
	}
	return string(data), args[0], nil
}
