// Package cmd provides the command-line interface for actsim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "actsim",
	Short: "actsim runs Lua scripted actors in a grid world.",
	Long: `actsim runs Lua scripted actors in a grid world. The act loop ` +
		`can be paused, stepped and sped up from the terminal or from the ` +
		`web monitor.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "actsim.toml",
		"Path to the TOML config file")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
