// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// File: root.go
// Package: cmd
//
// Description:
// This file contains the entry point and base configuration for the `oomtoolbox` CLI.
// It defines the root command (`rootCmd`) that owns the persistent flags shared by
// every subcommand and prepares the logger and the kernel ruleset catalog before
// any subcommand runs.
//
// Features:
// - Serves as the primary entry point for the `oomtoolbox` CLI application.
// - Configures structured logging (level and optional rotated log file).
// - Loads the embedded ruleset catalog or a user supplied one (--catalog).
//
// Usage:
// - Run the `oomtoolbox` command without any arguments to see the help message:
//   `./oomtoolbox`
// - Analyse a captured report:
//   `./oomtoolbox analyze /var/log/messages --format text`
//
// Authors:
// - Cloudberry Open Source Contributors

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/edespino/oomtoolbox/internal/kconfig"
	"github.com/edespino/oomtoolbox/internal/log"
)

// catalog is the ruleset catalog used by all subcommands. It is set in
// PersistentPreRunE.
var catalog *kconfig.Catalog

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "oomtoolbox",
	Short: "Analyse Linux OOM killer reports",
	Long: `The oomtoolbox CLI turns the kernel log of an OOM killer invocation into a
structured analysis: memory summary, buddy info, zone watermarks, process table,
decoded GFP flags and the reason the triggering allocation failed.

Examples:
  - Analyse a syslog excerpt and print a report:
    ./oomtoolbox analyze oom.log --format text

  - Analyse the current kernel ring buffer as JSON:
    ./oomtoolbox analyze --dmesg --format json

  - Decode a GFP mask for a given kernel:
    ./oomtoolbox gfp 0x201da --kernel 3.10.0-514.el7.x86_64`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(formatFlag); err != nil {
			return err
		}
		if err := setupLogger(logLevelFlag, logFileFlag); err != nil {
			return err
		}
		c, err := loadCatalog(catalogFlag)
		if err != nil {
			return err
		}
		catalog = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This function is called by main.main() to start the application.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initSharedFlags()
}
