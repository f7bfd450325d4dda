/*
Copyright © 2023 OpenTDF opentdf@virtru.com
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kas",
	Short: "OpenTDF Key Access Service",
	Long: `The Key Access Service (KAS) is the authorization and unwrap
endpoint for TDF and NanoTDF objects: it validates client claims,
enforces attribute-based access control, and rewraps data encryption
keys to authorized clients.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables override)")
}
