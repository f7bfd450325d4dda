/*
Copyright © 2023 OpenTDF opentdf@virtru.com
*/
package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/opentdf/kas/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(version.GetVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
